package imagecodec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// FallbackMime is assumed when an encoded image carries no type tag.
	FallbackMime = "image/jpeg"

	dataPrefix = "data:"
	b64Marker  = ";base64,"
)

var (
	ErrTooLarge = errors.New("image exceeds upload size limit")
	ErrRead     = errors.New("image could not be read")
	ErrDecode   = errors.New("image could not be decoded")
	ErrFetch    = errors.New("image could not be fetched")
)

// Encoded is an image carried as a data URI: data:<mime>;base64,<payload>.
type Encoded string

func Wrap(mimeType, payload string) Encoded {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = FallbackMime
	}
	return Encoded(dataPrefix + mimeType + b64Marker + payload)
}

func FromBytes(mimeType string, data []byte) Encoded {
	return Wrap(mimeType, base64.StdEncoding.EncodeToString(data))
}

// Split returns the MIME type and base64 payload. A value without a data:
// prefix is treated as a bare jpeg payload.
func Split(img Encoded) (string, string) {
	value := strings.TrimSpace(string(img))
	if !strings.HasPrefix(value, dataPrefix) {
		return FallbackMime, value
	}

	meta, payload, ok := strings.Cut(value, ",")
	if !ok {
		return FallbackMime, value
	}

	meta = strings.TrimPrefix(meta, dataPrefix)
	mimeType, _, _ := strings.Cut(meta, ";")
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = FallbackMime
	}
	return mimeType, payload
}

func (e Encoded) MimeType() string {
	mimeType, _ := Split(e)
	return mimeType
}

func (e Encoded) Payload() string {
	_, payload := Split(e)
	return payload
}

func (e Encoded) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(e.Payload())
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return data, nil
}

func (e Encoded) IsZero() bool {
	return strings.TrimSpace(string(e)) == ""
}

func (e Encoded) String() string {
	return string(e)
}
