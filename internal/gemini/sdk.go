package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"virtual-fitting-room/internal/imagecodec"
)

// SDKClient is the same contract backed by the official genai SDK.
type SDKClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewSDK(ctx context.Context, opts Options) (*SDKClient, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions.BaseURL = strings.TrimRight(base, "/") + "/"
	}
	if v := strings.TrimSpace(opts.APIVersion); v != "" {
		cfg.HTTPOptions.APIVersion = v
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &SDKClient{
		client: client,
		model:  model,
		logger: loggerOrDiscard(opts.Logger),
	}, nil
}

func (c *SDKClient) GenerateTryOn(ctx context.Context, userImage, productImage imagecodec.Encoded, productDescription string) (imagecodec.Encoded, error) {
	userBytes, err := userImage.Bytes()
	if err != nil {
		return "", fmt.Errorf("user image: %w", err)
	}
	productBytes, err := productImage.Bytes()
	if err != nil {
		return "", fmt.Errorf("product image: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(BuildInstruction(productDescription)),
		genai.NewPartFromBytes(userBytes, userImage.MimeType()),
		genai.NewPartFromBytes(productBytes, productImage.MimeType()),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	})
	if err != nil {
		return "", &TransportError{Err: err}
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				c.logger.Debug("try-on image generated", "model", c.model, "bytes", len(p.InlineData.Data))
				return imagecodec.Wrap(resultMime, base64.StdEncoding.EncodeToString(p.InlineData.Data)), nil
			}
		}
	}

	reason := "no candidates"
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		reason = "blocked: " + string(resp.PromptFeedback.BlockReason)
	} else if len(resp.Candidates) > 0 {
		reason = "finish reason " + strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	return "", fmt.Errorf("%w: %s", ErrNoImageReturned, reason)
}
