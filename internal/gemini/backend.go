package gemini

import (
	"context"
	"fmt"
	"strings"

	"virtual-fitting-room/internal/imagecodec"
)

const (
	BackendREST = "rest"
	BackendSDK  = "sdk"
)

// Generator is implemented by both Client and SDKClient.
type Generator interface {
	GenerateTryOn(ctx context.Context, userImage, productImage imagecodec.Encoded, productDescription string) (imagecodec.Encoded, error)
}

// NewBackend builds the generator named by backend. An empty name selects
// the REST client.
func NewBackend(ctx context.Context, backend string, opts Options) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendREST:
		return New(opts), nil
	case BackendSDK:
		return NewSDK(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown gemini backend %q", backend)
	}
}
