package storage

import (
	"context"
	"encoding/base64"
	"strings"
)

// Service stores avatar image payloads in remote object storage and hands
// back a location the record can reference instead of the inline bytes.
type Service interface {
	UploadAvatar(ctx context.Context, key string, data []byte, contentType string) (string, error)
	DeleteAvatar(ctx context.Context, key string) error
}

// ParseImageDataURI splits an inline data:image/... payload into its
// content type and decoded bytes. ok is false for anything that is not a
// well-formed base64 image data URI.
func ParseImageDataURI(s string) (contentType string, data []byte, ok bool) {
	if !strings.HasPrefix(s, "data:image/") {
		return "", nil, false
	}
	rest := strings.TrimPrefix(s, "data:")
	sep := strings.Index(rest, ";base64,")
	if sep <= 0 {
		return "", nil, false
	}
	contentType = rest[:sep]
	decoded, err := base64.StdEncoding.DecodeString(rest[sep+len(";base64,"):])
	if err != nil {
		return "", nil, false
	}
	return contentType, decoded, true
}
