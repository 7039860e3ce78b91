package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"virtual-fitting-room/internal/imagecodec"
)

const (
	DefaultModel      = "gemini-2.5-flash-image"
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"

	resultMime = "image/png"
)

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the generateContent REST endpoint directly.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 180 * time.Second}
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		model:      model,
		httpClient: httpClient,
		logger:     loggerOrDiscard(opts.Logger),
	}
}

// GenerateTryOn asks the model to dress the person in userImage with the
// garment in productImage. It makes exactly one request.
func (c *Client) GenerateTryOn(ctx context.Context, userImage, productImage imagecodec.Encoded, productDescription string) (imagecodec.Encoded, error) {
	req := buildRequest(userImage, productImage, productDescription)

	resp, err := c.generateContent(ctx, req)
	if err != nil {
		return "", err
	}

	data, ok := firstInlineImage(resp)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoImageReturned, describeEmpty(resp))
	}

	c.logger.Debug("try-on image generated", "model", c.model, "bytes_b64", len(data))
	return imagecodec.Wrap(resultMime, data), nil
}

func buildRequest(userImage, productImage imagecodec.Encoded, productDescription string) generateContentRequest {
	userMime, userData := imagecodec.Split(userImage)
	productMime, productData := imagecodec.Split(productImage)

	return generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: BuildInstruction(productDescription)},
				{InlineData: &blob{MimeType: userMime, Data: userData}},
				{InlineData: &blob{MimeType: productMime, Data: productData}},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
}

func (c *Client) generateContent(ctx context.Context, payload generateContentRequest) (generateContentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, &TransportError{Err: err}
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, &TransportError{StatusCode: httpResp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("gemini response",
		"status", httpResp.StatusCode,
		"dur_ms", time.Since(start).Milliseconds(),
		"bytes", len(rawBody),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return generateContentResponse{}, &TransportError{
			StatusCode: httpResp.StatusCode,
			Err:        errors.New(apiErrorMessage(rawBody, httpResp.Status)),
		}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, &TransportError{StatusCode: httpResp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return decoded, nil
}

// firstInlineImage scans the first candidate's parts in order.
func firstInlineImage(resp generateContentResponse) (string, bool) {
	if len(resp.Candidates) == 0 {
		return "", false
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return p.InlineData.Data, true
		}
	}
	return "", false
}

func describeEmpty(resp generateContentResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "blocked: " + resp.PromptFeedback.BlockReason
	}
	if len(resp.Candidates) == 0 {
		return "no candidates"
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	msg := "finish reason " + strings.ToLower(cand.FinishReason)
	if t := strings.TrimSpace(text.String()); t != "" {
		msg += ", text: " + truncate(t, 200)
	}
	return msg
}

func apiErrorMessage(raw []byte, status string) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		if body.Error.Status != "" {
			return body.Error.Status + ": " + body.Error.Message
		}
		return body.Error.Message
	}
	if t := strings.TrimSpace(string(raw)); t != "" {
		return status + ": " + truncate(t, 500)
	}
	return status
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}
