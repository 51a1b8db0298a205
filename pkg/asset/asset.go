// Package asset defines the immutable image asset shared by every resolution tier.
package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
)

// Asset is a resolved image. It must not be modified after New returns it.
type Asset struct {
	// Data is the image body
	Data []byte `json:"data"`

	// ContentType is the MIME type served to clients
	ContentType string `json:"content_type"`

	// ETag is a strong, quoted hash of Data
	ETag string `json:"etag"`

	// LastModified is the origin modification time (truncated to seconds for HTTP)
	LastModified time.Time `json:"last_modified"`

	// Size is len(Data)
	Size int64 `json:"size"`
}

// New builds an Asset from bytes. An empty contentType is detected from the bytes,
// a zero lastModified becomes the current time.
func New(data []byte, contentType string, lastModified time.Time) *Asset {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if lastModified.IsZero() {
		lastModified = time.Now()
	}

	return &Asset{
		Data:         data,
		ContentType:  contentType,
		ETag:         ETagFor(data),
		LastModified: lastModified.UTC().Truncate(time.Second),
		Size:         int64(len(data)),
	}
}

// ETagFor returns the strong ETag for a body. Identical bytes always produce the same tag.
func ETagFor(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%q", hex.EncodeToString(sum[:16]))
}

// ContentTypeFor returns the MIME type registered for the extension of key,
// or an empty string when unknown.
func ContentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".avif":
		return "image/avif"
	case ".gif":
		return "image/gif"
	}
	return mime.TypeByExtension(ext)
}
