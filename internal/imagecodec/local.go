package imagecodec

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxUploadBytes is the hard cap for user uploads (10 MiB).
const DefaultMaxUploadBytes int64 = 10 << 20

// DecodeLocalFile wraps an uploaded file. size is the size reported by the
// caller and is checked before the bytes are looked at.
func DecodeLocalFile(data []byte, declaredMime string, size int64, maxBytes int64) (Encoded, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if size > maxBytes || int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, max(size, int64(len(data))), maxBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrRead)
	}

	mimeType, err := resolveMime(data, declaredMime)
	if err != nil {
		return "", err
	}
	return FromBytes(mimeType, data), nil
}

// resolveMime requires the bytes to sniff as an image. A concrete declared
// image type is kept over the sniffed one.
func resolveMime(data []byte, declared string) (string, error) {
	detected := normalizeMime(mimetype.Detect(data).String())
	if !strings.HasPrefix(detected, "image/") {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrRead, detected)
	}

	declared = normalizeMime(declared)
	if strings.HasPrefix(declared, "image/") && declared != "image/*" {
		return declared, nil
	}
	return detected, nil
}

func normalizeMime(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	return strings.ToLower(value)
}
