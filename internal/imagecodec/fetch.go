package imagecodec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// maxFetchBytes bounds remote product images.
const maxFetchBytes = 32 << 20

type Fetcher struct {
	httpClient *http.Client
}

func NewFetcher(httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{httpClient: httpClient}
}

// Fetch downloads uri and wraps the body with its content type.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (Encoded, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("accept", "image/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s returned %s", ErrFetch, uri, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	if len(data) > maxFetchBytes {
		return "", fmt.Errorf("%w: %s is larger than %d bytes", ErrFetch, uri, maxFetchBytes)
	}

	mimeType := normalizeMime(resp.Header.Get("content-type"))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = normalizeMime(mimetype.Detect(data).String())
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = FallbackMime
	}

	return FromBytes(mimeType, data), nil
}
