package pathvalidate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Accepts(t *testing.T) {
	v := New(DefaultConfig())

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"simple", "logo.png", "logo.png"},
		{"leading slash", "/logo.png", "logo.png"},
		{"nested", "team/photos/alice.jpg", "team/photos/alice.jpg"},
		{"duplicate slashes", "team//photos///a.webp", "team/photos/a.webp"},
		{"dot segment", "./team/./a.avif", "team/a.avif"},
		{"uppercase extension", "hero/Banner.JPEG", "hero/Banner.JPEG"},
		{"encoded space", "hero/my%20banner.png", "hero/my banner.png"},
		{"dots in name", "v1.2/logo.final.png", "v1.2/logo.final.png"},
		{"double encoded space", "a%2520b.png", "a b.png"},
		{"utf-8 name", "team/caf%C3%A9.png", "team/café.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	v := New(DefaultConfig())

	tests := []struct {
		name   string
		raw    string
		reason Reason
	}{
		{"empty", "", ReasonEmpty},
		{"only slashes", "///", ReasonEmpty},
		{"traversal", "../../etc/passwd", ReasonTraversal},
		{"traversal with image ext", "../secret.png", ReasonTraversal},
		{"inner traversal", "a/../../b.png", ReasonTraversal},
		{"encoded traversal", "%2e%2e/%2e%2e/etc/passwd.png", ReasonTraversal},
		{"mixed encoded traversal", "..%2f..%2fetc.png", ReasonTraversal},
		{"double encoded traversal", "%252e%252e/secret.png", ReasonTraversal},
		{"backslash", "..\\windows\\win.ini.png", ReasonTraversal},
		{"encoded backslash", "a%5c..%5cb.png", ReasonTraversal},
		{"triple dots", ".../a.png", ReasonTraversal},
		{"drive letter", "C:/images/a.png", ReasonTraversal},
		{"null byte", "logo.png%00.jpg", ReasonEncoding},
		{"bad escape", "logo%zz.png", ReasonEncoding},
		{"invalid utf-8", "%ff%fe.png", ReasonEncoding},
		{"invalid utf-8 in directory", "team/%c3/logo.png", ReasonEncoding},
		{"literal percent", "100%25.png", ReasonEncoding},
		{"script tag", "<script>alert(1)</script>.png", ReasonScript},
		{"javascript scheme", "javascript:alert(1).png", ReasonScript},
		{"quote", "a\".png", ReasonScript},
		{"onerror", "x onerror=alert(1).png", ReasonScript},
		{"disallowed extension", "etc/passwd", ReasonExtension},
		{"svg not allowed", "logo.svg", ReasonExtension},
		{"html", "index.html", ReasonExtension},
		{"too long", strings.Repeat("a", 600) + ".png", ReasonTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.raw)
			require.Error(t, err)
			assert.Empty(t, got)
			assert.True(t, errors.Is(err, ErrInvalidPath))

			var invalid *InvalidPathError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.reason, invalid.Reason)
		})
	}
}

func TestNew_CustomExtensions(t *testing.T) {
	v := New(Config{MaxLength: 32, AllowedExtensions: []string{".PNG", " svg "}})

	_, err := v.Validate("icon.svg")
	assert.NoError(t, err)

	_, err = v.Validate("photo.jpg")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = v.Validate(strings.Repeat("b", 40) + ".png")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestInvalidPathError_HidesInput(t *testing.T) {
	err := &InvalidPathError{Path: "../../etc/passwd", Reason: ReasonTraversal}
	assert.NotContains(t, err.Error(), "passwd")
}
