package cache

import "testing"

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "default namespace",
			key:  CacheKey{Path: "logo.png"},
			want: "img:logo.png",
		},
		{
			name: "nested path with slashes trimmed",
			key:  CacheKey{Path: "/team/photos/alice.jpg/"},
			want: "img:team/photos/alice.jpg",
		},
		{
			name: "custom namespace",
			key:  CacheKey{Namespace: "staging", Path: "hero.webp"},
			want: "staging:hero.webp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShardIndex_Deterministic(t *testing.T) {
	for _, key := range []string{"a.png", "team/b.jpg", "c.webp"} {
		first := shardIndex(key, 16)
		if first < 0 || first >= 16 {
			t.Fatalf("shardIndex(%q) = %d out of range", key, first)
		}
		for i := 0; i < 5; i++ {
			if got := shardIndex(key, 16); got != first {
				t.Errorf("shardIndex(%q) not deterministic: %d vs %d", key, got, first)
			}
		}
	}
}
