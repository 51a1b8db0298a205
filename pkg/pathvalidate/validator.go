// Package pathvalidate canonicalizes requested image keys and rejects traversal,
// injection and disallowed extensions before any tier is consulted.
package pathvalidate

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidPath is matched by every error returned from Validate.
var ErrInvalidPath = errors.New("invalid image path")

// Reason classifies why a path was rejected.
type Reason string

const (
	ReasonEmpty     Reason = "empty"
	ReasonTooLong   Reason = "too_long"
	ReasonTraversal Reason = "traversal"
	ReasonEncoding  Reason = "encoding"
	ReasonScript    Reason = "script"
	ReasonExtension Reason = "extension"
)

// InvalidPathError describes a rejected path. Path is the raw input and is
// only meant for logs, never for responses.
type InvalidPathError struct {
	Path   string
	Reason Reason
}

// Error implements the error interface.
func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid image path (%s)", e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidPath.
func (e *InvalidPathError) Unwrap() error {
	return ErrInvalidPath
}

// DefaultExtensions is the default allow-list.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "webp", "avif", "gif"}

// DefaultMaxLength bounds the raw and decoded key length.
const DefaultMaxLength = 512

// maxDecodeRounds bounds repeated percent-decoding (%252e → %2e → .).
const maxDecodeRounds = 3

var scriptMarkers = []string{
	"javascript:",
	"vbscript:",
	"data:",
	"<script",
	"onerror=",
	"onload=",
}

// Config holds validator settings.
type Config struct {
	MaxLength         int
	AllowedExtensions []string
}

// DefaultConfig returns the default validator configuration.
func DefaultConfig() Config {
	return Config{
		MaxLength:         DefaultMaxLength,
		AllowedExtensions: DefaultExtensions,
	}
}

// Validator is safe for concurrent use; it holds no mutable state.
type Validator struct {
	maxLength  int
	extensions map[string]struct{}
}

// New creates a validator. Extensions are matched case-insensitively, with or without a leading dot.
func New(cfg Config) *Validator {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultExtensions
	}

	exts := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts[ext] = struct{}{}
		}
	}

	return &Validator{maxLength: cfg.MaxLength, extensions: exts}
}

// Validate returns the canonical object key for raw, or an *InvalidPathError.
// The canonical key has no leading slash and no empty or dot segments.
func (v *Validator) Validate(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", v.reject(raw, ReasonEmpty)
	}
	if len(raw) > v.maxLength {
		return "", v.reject(raw, ReasonTooLong)
	}

	decoded, err := decode(raw)
	if err != nil {
		return "", v.reject(raw, ReasonEncoding)
	}
	if len(decoded) > v.maxLength {
		return "", v.reject(raw, ReasonTooLong)
	}
	if !utf8.ValidString(decoded) {
		return "", v.reject(raw, ReasonEncoding)
	}

	for _, r := range decoded {
		if r == 0 || unicode.IsControl(r) {
			return "", v.reject(raw, ReasonEncoding)
		}
		if r == '\\' {
			return "", v.reject(raw, ReasonTraversal)
		}
		if r == '<' || r == '>' || r == '"' || r == '\'' || r == '`' {
			return "", v.reject(raw, ReasonScript)
		}
	}

	lower := strings.ToLower(decoded)
	for _, marker := range scriptMarkers {
		if strings.Contains(lower, marker) {
			return "", v.reject(raw, ReasonScript)
		}
	}

	// Drive letters ("C:") and scheme-like prefixes never name an object key.
	first, _, _ := strings.Cut(strings.TrimLeft(decoded, "/"), "/")
	if strings.Contains(first, ":") {
		return "", v.reject(raw, ReasonTraversal)
	}

	segments := make([]string, 0, strings.Count(decoded, "/")+1)
	for _, seg := range strings.Split(decoded, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", v.reject(raw, ReasonTraversal)
		}
		if strings.Trim(seg, ".") == "" || strings.HasPrefix(seg, "..") {
			return "", v.reject(raw, ReasonTraversal)
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", v.reject(raw, ReasonEmpty)
	}

	key := strings.Join(segments, "/")
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
	if _, ok := v.extensions[ext]; !ok {
		return "", v.reject(raw, ReasonExtension)
	}

	return key, nil
}

func (v *Validator) reject(raw string, reason Reason) error {
	return &InvalidPathError{Path: raw, Reason: reason}
}

// decode percent-decodes until the value is stable. A value that still
// contains an escape after maxDecodeRounds is treated as an evasion attempt.
func decode(raw string) (string, error) {
	s := raw
	for i := 0; i < maxDecodeRounds; i++ {
		if !strings.Contains(s, "%") {
			return s, nil
		}
		next, err := url.PathUnescape(s)
		if err != nil {
			return "", err
		}
		if next == s {
			return s, nil
		}
		s = next
	}
	if strings.Contains(s, "%") {
		return "", fmt.Errorf("too many encoding layers")
	}
	return s, nil
}
