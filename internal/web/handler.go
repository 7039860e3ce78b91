package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/imagecodec"
	"virtual-fitting-room/internal/session"
	"virtual-fitting-room/internal/tryon"
)

// multipartOverhead leaves room for boundaries and other form fields on top
// of the photo itself.
const multipartOverhead = 1 << 20

type Handler struct {
	catalog  *catalog.Catalog
	sessions *session.Store
	// baseCtx outlives requests so background generations survive the
	// 202 reply. It is cancelled on shutdown.
	baseCtx        context.Context
	maxUploadBytes int64
	logger         *slog.Logger
}

type createSessionRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

type sessionView struct {
	ID          string             `json:"id"`
	Product     *catalog.Product   `json:"product,omitempty"`
	Status      tryon.Status       `json:"status"`
	HasPhoto    bool               `json:"has_photo"`
	UserPhoto   imagecodec.Encoded `json:"user_photo,omitempty"`
	Result      imagecodec.Encoded `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	UploadError string             `json:"upload_error,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func viewOf(id string, st tryon.State) sessionView {
	return sessionView{
		ID:          id,
		Product:     st.Product,
		Status:      st.Status,
		HasPhoto:    st.HasPhoto(),
		UserPhoto:   st.UserPhoto,
		Result:      st.Result,
		Error:       st.Error,
		UploadError: st.UploadError,
		UpdatedAt:   st.UpdatedAt,
	}
}

// ListProducts handles GET /api/v1/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Data: h.catalog.List()})
}

// GetProduct handles GET /api/v1/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: p})
}

// CreateSession handles POST /api/v1/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeValidationError(w, r, err)
		return
	}

	p, err := h.catalog.Get(req.ProductID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	sess := h.sessions.Open(session.NewID(), p)
	writeJSON(w, http.StatusCreated, Response{Data: viewOf(sess.ID, sess.Controller.State())})
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: viewOf(sess.ID, sess.Controller.State())})
}

// UploadPhoto handles POST /api/v1/sessions/{id}/photo (multipart field "photo").
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			// The body outgrew the cap before the file could be read.
			_, err = sess.Controller.Upload(nil, "", math.MaxInt64)
			writeError(w, r, err, h.logger)
			return
		}
		writeErrorCode(w, r, http.StatusBadRequest, "INVALID_INPUT", "failed to parse multipart form: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "INVALID_INPUT", "photo is required")
		return
	}
	defer file.Close()

	var data []byte
	if header.Size <= h.maxUploadBytes {
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, r, err, h.logger)
			return
		}
	}

	st, err := sess.Controller.Upload(data, header.Header.Get("Content-Type"), header.Size)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: viewOf(sess.ID, st)})
}

// RemovePhoto handles DELETE /api/v1/sessions/{id}/photo.
func (h *Handler) RemovePhoto(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st, err := sess.Controller.RemovePhoto()
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: viewOf(sess.ID, st)})
}

// Generate handles POST /api/v1/sessions/{id}/generate. The pipeline runs in
// the background; clients poll GET /sessions/{id}.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st, err := sess.Controller.GenerateAsync(h.baseCtx)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	status := http.StatusAccepted
	if st.Status != tryon.StatusGenerating {
		status = http.StatusOK
	}
	writeJSON(w, status, Response{Data: viewOf(sess.ID, st)})
}

// ResetResult handles POST /api/v1/sessions/{id}/reset.
func (h *Handler) ResetResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st, err := sess.Controller.ResetResult()
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: viewOf(sess.ID, st)})
}

// CloseSession handles DELETE /api/v1/sessions/{id}.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return nil, false
	}
	return sess, true
}
