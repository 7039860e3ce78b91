package tryon

import (
	"time"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/imagecodec"
)

type Status string

const (
	StatusIdle          Status = "idle"
	StatusAwaitingPhoto Status = "awaiting_photo"
	StatusGenerating    Status = "generating"
	StatusSucceeded     Status = "succeeded"
	StatusFailed        Status = "failed"
)

// Shopper-facing messages. Causes are logged, never shown.
const (
	FailureMessage  = "Generation failed. Please try again or use a clearer photo."
	TooLargeMessage = "File size too large. Please upload an image under 10MB."
	ReadMessage     = "Failed to read file."
)

// State is the whole of one fitting session.
//
// Result is set only in StatusSucceeded and Error only in StatusFailed.
// UploadError carries the last rejected upload and does not affect Status.
type State struct {
	Product     *catalog.Product   `json:"product,omitempty"`
	UserPhoto   imagecodec.Encoded `json:"user_photo,omitempty"`
	Result      imagecodec.Encoded `json:"result,omitempty"`
	Status      Status             `json:"status"`
	Error       string             `json:"error,omitempty"`
	UploadError string             `json:"upload_error,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func (s State) HasPhoto() bool {
	return !s.UserPhoto.IsZero()
}

// CanGenerate reports whether a generation may start from this state.
func (s State) CanGenerate() bool {
	if !s.HasPhoto() || s.Product == nil {
		return false
	}
	return s.Status == StatusAwaitingPhoto || s.Status == StatusFailed
}

type Event interface {
	apply(State) (State, bool)
}

type (
	ProductSelected     struct{ Product catalog.Product }
	PhotoAccepted       struct{ Photo imagecodec.Encoded }
	PhotoRejected       struct{ Message string }
	PhotoRemoved        struct{}
	GenerationStarted   struct{}
	GenerationSucceeded struct{ Result imagecodec.Encoded }
	GenerationFailed    struct{ Message string }
	ResultReset         struct{}
)

// Reduce applies ev to s. The bool is false when ev is not valid in s, in
// which case s is returned unchanged.
func Reduce(s State, ev Event) (State, bool) {
	if ev == nil {
		return s, false
	}
	return ev.apply(s)
}

func (e ProductSelected) apply(s State) (State, bool) {
	if s.Status == StatusGenerating {
		return s, false
	}
	p := e.Product
	if s.Product != nil && s.Product.ID == p.ID {
		return s, true
	}
	s.Product = &p
	s.Result = ""
	s.Error = ""
	if s.HasPhoto() {
		s.Status = StatusAwaitingPhoto
	} else {
		s.Status = StatusIdle
	}
	return s, true
}

func (e PhotoAccepted) apply(s State) (State, bool) {
	if s.Status == StatusGenerating || e.Photo.IsZero() {
		return s, false
	}
	s.UserPhoto = e.Photo
	s.Result = ""
	s.Error = ""
	s.UploadError = ""
	s.Status = StatusAwaitingPhoto
	return s, true
}

func (e PhotoRejected) apply(s State) (State, bool) {
	if s.Status == StatusGenerating {
		return s, false
	}
	s.UploadError = e.Message
	return s, true
}

func (PhotoRemoved) apply(s State) (State, bool) {
	if s.Status == StatusGenerating {
		return s, false
	}
	s.UserPhoto = ""
	s.Result = ""
	s.Error = ""
	s.UploadError = ""
	s.Status = StatusIdle
	return s, true
}

func (GenerationStarted) apply(s State) (State, bool) {
	if !s.CanGenerate() {
		return s, false
	}
	s.Status = StatusGenerating
	s.Result = ""
	s.Error = ""
	s.UploadError = ""
	return s, true
}

func (e GenerationSucceeded) apply(s State) (State, bool) {
	if s.Status != StatusGenerating || e.Result.IsZero() {
		return s, false
	}
	s.Status = StatusSucceeded
	s.Result = e.Result
	s.Error = ""
	return s, true
}

func (e GenerationFailed) apply(s State) (State, bool) {
	if s.Status != StatusGenerating {
		return s, false
	}
	msg := e.Message
	if msg == "" {
		msg = FailureMessage
	}
	s.Status = StatusFailed
	s.Result = ""
	s.Error = msg
	return s, true
}

func (ResultReset) apply(s State) (State, bool) {
	if s.Status != StatusSucceeded {
		return s, false
	}
	s.Status = StatusAwaitingPhoto
	s.Result = ""
	return s, true
}
