package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	g, err := NewBackend(context.Background(), "", Options{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Client{}, g)

	g, err = NewBackend(context.Background(), " REST ", Options{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Client{}, g)

	g, err = NewBackend(context.Background(), BackendSDK, Options{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &SDKClient{}, g)

	_, err = NewBackend(context.Background(), "grpc", Options{APIKey: "k"})
	assert.Error(t, err)
}
