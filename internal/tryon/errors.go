package tryon

import (
	"context"
	"errors"
	"fmt"

	"virtual-fitting-room/internal/gemini"
	"virtual-fitting-room/internal/imagecodec"
)

type Stage string

const (
	StageResizeUser    Stage = "resize_user_photo"
	StageFetchProduct  Stage = "fetch_product_image"
	StageResizeProduct Stage = "resize_product_image"
	StageGenerate      Stage = "generate"
)

// StageError records which pipeline step failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// outcomeFor maps a pipeline error onto a metrics label.
func outcomeFor(err error) string {
	switch {
	case errors.Is(err, gemini.ErrNoImageReturned):
		return "no_image"
	case errors.Is(err, gemini.ErrTransport):
		return "transport_error"
	case errors.Is(err, imagecodec.ErrFetch):
		return "fetch_error"
	case errors.Is(err, imagecodec.ErrDecode):
		return "decode_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
