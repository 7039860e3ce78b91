package tryon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/imagecodec"
	"virtual-fitting-room/internal/metrics"
)

var (
	ErrGenerationInFlight = errors.New("a generation is already in progress")
	ErrSessionClosed      = errors.New("session is closed")
	ErrInvalidTransition  = errors.New("action not allowed in current state")
)

// Generator produces the try-on image. Implementations make one attempt.
type Generator interface {
	GenerateTryOn(ctx context.Context, userImage, productImage imagecodec.Encoded, productDescription string) (imagecodec.Encoded, error)
}

// ImageSource resolves a product image URI.
type ImageSource interface {
	Fetch(ctx context.Context, uri string) (imagecodec.Encoded, error)
}

type Limits struct {
	MaxUploadBytes int64
	MaxWidth       int
	MaxHeight      int
	Quality        int
}

func DefaultLimits() Limits {
	return Limits{
		MaxUploadBytes: imagecodec.DefaultMaxUploadBytes,
		MaxWidth:       800,
		MaxHeight:      800,
		Quality:        imagecodec.DefaultQuality,
	}
}

type Options struct {
	Generator Generator
	Images    ImageSource
	Limits    Limits
	// Timeout bounds one pipeline run. Zero means no timeout.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// OnChange is called with every new state, outside the lock.
	OnChange func(State)
	Now      func() time.Time
}

// Controller owns one fitting session. It is safe for concurrent use; events
// are applied one at a time and at most one generation runs.
type Controller struct {
	mu     sync.Mutex
	state  State
	closed bool
	// epoch changes whenever an in-flight result must be discarded.
	epoch uint64

	gen      Generator
	images   ImageSource
	limits   Limits
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onChange func(State)
	now      func() time.Time
}

func NewController(opts Options) *Controller {
	limits := opts.Limits
	def := DefaultLimits()
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = def.MaxUploadBytes
	}
	if limits.MaxWidth <= 0 {
		limits.MaxWidth = def.MaxWidth
	}
	if limits.MaxHeight <= 0 {
		limits.MaxHeight = def.MaxHeight
	}
	if limits.Quality <= 0 || limits.Quality > 100 {
		limits.Quality = def.Quality
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		gen:      opts.Generator,
		images:   opts.Images,
		limits:   limits,
		timeout:  opts.Timeout,
		logger:   logger,
		metrics:  opts.Metrics,
		onChange: opts.OnChange,
		now:      now,
	}
	c.state = State{Status: StatusIdle, UpdatedAt: now()}
	return c
}

// Open creates a controller with p already selected.
func Open(p catalog.Product, opts Options) *Controller {
	c := NewController(opts)
	c.state, _ = Reduce(c.state, ProductSelected{Product: p})
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) SelectProduct(p catalog.Product) (State, error) {
	return c.dispatch(ProductSelected{Product: p})
}

// Upload validates and stores the shopper's photo. Validation failures are
// returned and recorded in State.UploadError; the previous photo is kept.
func (c *Controller) Upload(data []byte, declaredMime string, size int64) (State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, ErrSessionClosed
	}
	if c.state.Status == StatusGenerating {
		st := c.state
		c.mu.Unlock()
		return st, ErrGenerationInFlight
	}
	c.mu.Unlock()

	img, err := imagecodec.DecodeLocalFile(data, declaredMime, size, c.limits.MaxUploadBytes)
	if err != nil {
		reason, msg := "read", ReadMessage
		if errors.Is(err, imagecodec.ErrTooLarge) {
			reason, msg = "too_large", TooLargeMessage
		}
		c.metrics.UploadRejected(reason)
		c.logger.Info("upload rejected", "reason", reason, "err", err)

		st, dispatchErr := c.dispatch(PhotoRejected{Message: msg})
		if dispatchErr != nil {
			return st, dispatchErr
		}
		return st, err
	}

	return c.dispatch(PhotoAccepted{Photo: img})
}

func (c *Controller) RemovePhoto() (State, error) {
	return c.dispatch(PhotoRemoved{})
}

func (c *Controller) ResetResult() (State, error) {
	return c.dispatch(ResultReset{})
}

// Generate runs the pipeline and returns the final state. Without a photo it
// is a no-op and returns the current state.
func (c *Controller) Generate(ctx context.Context) (State, error) {
	run, st, err := c.begin()
	if err != nil || run == nil {
		return st, err
	}
	return run(ctx), nil
}

// GenerateAsync starts the pipeline in the background and returns the
// generating state. ctx should outlive the caller's request.
func (c *Controller) GenerateAsync(ctx context.Context) (State, error) {
	run, st, err := c.begin()
	if err != nil || run == nil {
		return st, err
	}
	go run(ctx)
	return st, nil
}

// Close discards the session. A late generation outcome is dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	c.mu.Unlock()
}

func (c *Controller) begin() (func(context.Context) State, State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, State{}, ErrSessionClosed
	}
	if c.state.Status == StatusGenerating {
		st := c.state
		c.mu.Unlock()
		return nil, st, ErrGenerationInFlight
	}

	next, ok := Reduce(c.state, GenerationStarted{})
	if !ok {
		st := c.state
		c.mu.Unlock()
		return nil, st, nil
	}

	next.UpdatedAt = c.now()
	c.state = next
	epoch := c.epoch
	photo := next.UserPhoto
	product := *next.Product
	c.mu.Unlock()

	c.notify(next)
	c.metrics.GenerationStarted()

	run := func(ctx context.Context) State {
		start := c.now()
		result, err := c.pipeline(ctx, photo, product)
		outcome := "success"
		var ev Event = GenerationSucceeded{Result: result}
		if err != nil {
			outcome = outcomeFor(err)
			ev = GenerationFailed{Message: FailureMessage}
			c.logger.Error("try-on generation failed", "product_id", product.ID, "outcome", outcome, "err", err)
		}
		c.metrics.GenerationFinished(outcome, c.now().Sub(start))
		return c.finish(epoch, ev)
	}
	return run, next, nil
}

// pipeline runs the strictly ordered generation stages.
func (c *Controller) pipeline(ctx context.Context, photo imagecodec.Encoded, product catalog.Product) (imagecodec.Encoded, error) {
	if c.gen == nil || c.images == nil {
		return "", errors.New("controller is missing a generator or image source")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	user, err := imagecodec.ResizeWithQuality(photo, c.limits.MaxWidth, c.limits.MaxHeight, c.limits.Quality)
	if err != nil {
		return "", &StageError{Stage: StageResizeUser, Err: err}
	}

	garment, err := c.images.Fetch(ctx, product.ImageURL)
	if err != nil {
		return "", &StageError{Stage: StageFetchProduct, Err: err}
	}

	garment, err = imagecodec.ResizeWithQuality(garment, c.limits.MaxWidth, c.limits.MaxHeight, c.limits.Quality)
	if err != nil {
		return "", &StageError{Stage: StageResizeProduct, Err: err}
	}

	result, err := c.gen.GenerateTryOn(ctx, user, garment, catalog.Describe(product))
	if err != nil {
		return "", &StageError{Stage: StageGenerate, Err: err}
	}
	return result, nil
}

func (c *Controller) finish(epoch uint64, ev Event) State {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		st := c.state
		c.mu.Unlock()
		c.logger.Debug("discarding late generation outcome")
		return st
	}
	next, ok := Reduce(c.state, ev)
	if !ok {
		st := c.state
		c.mu.Unlock()
		return st
	}
	next.UpdatedAt = c.now()
	c.state = next
	c.mu.Unlock()

	c.notify(next)
	return next
}

func (c *Controller) dispatch(ev Event) (State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, ErrSessionClosed
	}
	next, ok := Reduce(c.state, ev)
	if !ok {
		st := c.state
		c.mu.Unlock()
		if st.Status == StatusGenerating {
			return st, ErrGenerationInFlight
		}
		return st, fmt.Errorf("%w: %T in %s", ErrInvalidTransition, ev, st.Status)
	}
	next.UpdatedAt = c.now()
	c.state = next
	c.mu.Unlock()

	c.notify(next)
	return next, nil
}

func (c *Controller) notify(st State) {
	if c.onChange != nil {
		c.onChange(st)
	}
}
