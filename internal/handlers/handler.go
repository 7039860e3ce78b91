package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/imagecodec"
	"virtual-fitting-room/internal/mediagroup"
	"virtual-fitting-room/internal/session"
	"virtual-fitting-room/internal/telegram"
	"virtual-fitting-room/internal/tryon"
)

// Messenger is the part of the Telegram client the bot uses.
type Messenger interface {
	SendTyping(chatID int64)
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.Keyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.Keyboard) error
	AnswerCallback(callbackID, text string) error
	SendPhoto(chatID int64, img imagecodec.Encoded, caption string) error
	DownloadFile(ctx context.Context, fileID string, maxBytes int64) ([]byte, string, error)
}

type Options struct {
	Messenger Messenger
	Catalog   *catalog.Catalog
	Sessions  *session.Store
	// BaseContext parents background generations. Defaults to
	// context.Background.
	BaseContext    context.Context
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Handler drives one fitting session per chat.
type Handler struct {
	tg             Messenger
	catalog        *catalog.Catalog
	sessions       *session.Store
	baseCtx        context.Context
	maxUploadBytes int64
	logger         *slog.Logger
	aggregator     *mediagroup.Aggregator

	mu     sync.Mutex
	panels map[int64]panel
}

// panel is the chat message that shows the session and its buttons.
type panel struct {
	ownerID   int64
	messageID int
	// generating is set when a generation starts and cleared when its
	// outcome has been reported.
	generating bool
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = imagecodec.DefaultMaxUploadBytes
	}

	return &Handler{
		tg:             opts.Messenger,
		catalog:        opts.Catalog,
		sessions:       opts.Sessions,
		baseCtx:        baseCtx,
		maxUploadBytes: maxUpload,
		logger:         logger,
		panels:         make(map[int64]panel),
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if msg.IsCommand() {
		return h.handleCommand(chatID, userID, msg)
	}

	if len(msg.Photo) > 0 {
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		if msg.MediaGroupID != "" && h.aggregator != nil {
			h.aggregator.Add(mediagroup.Item{
				ChatID:       chatID,
				UserID:       userID,
				MediaGroupID: msg.MediaGroupID,
				FileID:       fileID,
			})
			return nil
		}
		return h.processPhoto(ctx, chatID, userID, fileID)
	}

	// Photos sent "as file" arrive as documents.
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return h.processPhoto(ctx, chatID, userID, msg.Document.FileID)
	}

	if strings.TrimSpace(msg.Text) != "" {
		if cmd, ok := commandFromText(msg.Text); ok {
			return h.runCommand(chatID, userID, cmd)
		}
		return h.tg.SendText(chatID, hintText)
	}
	return nil
}

// HandleMediaGroup uploads the first photo of an album.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if len(group.FileIDs) > 1 {
		_ = h.tg.SendText(group.ChatID, "Only the first photo of the album is used.")
	}
	if err := h.processPhoto(ctx, group.ChatID, group.UserID, group.First()); err != nil {
		h.logger.Error("media group processing failed", "chat_id", group.ChatID, "err", err)
	}
}

// Notify reports finished generations back to the chat. It is the session
// store's change hook.
func (h *Handler) Notify(sessionID string, st tryon.State) {
	chatID, err := strconv.ParseInt(sessionID, 10, 64)
	if err != nil {
		return
	}
	if !h.takeOutcome(chatID, st.Status) {
		return
	}

	switch st.Status {
	case tryon.StatusSucceeded:
		caption := "Your try-on result"
		if st.Product != nil {
			caption = fmt.Sprintf("%s: your try-on result", st.Product.Name)
		}
		if err := h.tg.SendPhoto(chatID, st.Result, caption); err != nil {
			h.logger.Error("send result failed", "chat_id", chatID, "err", err)
			_ = h.tg.SendText(chatID, "The result is ready but could not be sent. Press Generate to try again.")
		}
	case tryon.StatusFailed:
		_ = h.tg.SendText(chatID, st.Error)
	default:
		return
	}

	if err := h.renderPanel(chatID, st, false); err != nil {
		h.logger.Error("render panel failed", "chat_id", chatID, "err", err)
	}
}

func (h *Handler) processPhoto(ctx context.Context, chatID, userID int64, fileID string) error {
	sess, err := h.sessions.Get(chatKey(chatID))
	if err != nil {
		return h.tg.SendText(chatID, "Pick an outfit first: /catalog")
	}
	h.tg.SendTyping(chatID)

	data, contentType, err := h.tg.DownloadFile(ctx, fileID, h.maxUploadBytes)
	var size int64
	switch {
	case errors.Is(err, telegram.ErrFileTooLarge):
		size = math.MaxInt64
	case err != nil:
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, tryon.ReadMessage)
	default:
		size = int64(len(data))
	}

	st, err := sess.Controller.Upload(data, contentType, size)
	switch {
	case errors.Is(err, tryon.ErrGenerationInFlight):
		return h.tg.SendText(chatID, "Please wait, a try-on is still being generated.")
	case errors.Is(err, tryon.ErrSessionClosed):
		return h.tg.SendText(chatID, "This session was closed. Pick an outfit: /catalog")
	case err != nil:
		_ = h.tg.SendText(chatID, st.UploadError)
	}

	h.setOwner(chatID, userID)
	return h.renderPanel(chatID, st, false)
}

func (h *Handler) openSession(chatID, userID int64, productID string) (tryon.State, error) {
	p, err := h.catalog.Get(productID)
	if err != nil {
		return tryon.State{}, err
	}

	key := chatKey(chatID)
	if sess, err := h.sessions.Get(key); err == nil {
		// Keep the shopper's photo when they switch outfits.
		st, err := sess.Controller.SelectProduct(p)
		if err == nil {
			h.setOwner(chatID, userID)
			return st, nil
		}
		if errors.Is(err, tryon.ErrGenerationInFlight) {
			return st, err
		}
	}

	sess := h.sessions.Open(key, p)
	h.setOwner(chatID, userID)
	return sess.Controller.State(), nil
}

func (h *Handler) closeSession(chatID int64) bool {
	err := h.sessions.Close(chatKey(chatID))
	h.mu.Lock()
	delete(h.panels, chatID)
	h.mu.Unlock()
	return err == nil
}

func (h *Handler) setOwner(chatID, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.panels[chatID]
	p.ownerID = userID
	h.panels[chatID] = p
}

// takeOutcome reports whether st is the outcome of a generation this chat
// started and has not been told about yet. Other events that leave the
// session succeeded or failed are not outcomes.
func (h *Handler) takeOutcome(chatID int64, status tryon.Status) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.panels[chatID]
	switch status {
	case tryon.StatusGenerating:
		p.generating = true
		h.panels[chatID] = p
		return false
	case tryon.StatusSucceeded, tryon.StatusFailed:
		if !ok || !p.generating {
			return false
		}
		p.generating = false
		h.panels[chatID] = p
		return true
	default:
		return false
	}
}

func (h *Handler) panelFor(chatID int64) panel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.panels[chatID]
}

// renderPanel edits the chat's panel in place when possible and otherwise
// sends a fresh one.
func (h *Handler) renderPanel(chatID int64, st tryon.State, edit bool) error {
	p := h.panelFor(chatID)
	text := panelText(st)
	kb := panelKeyboard(p.ownerID, st)

	if edit && p.messageID != 0 {
		if err := h.tg.EditTextWithKeyboard(chatID, p.messageID, text, kb); err == nil {
			return nil
		}
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.mu.Lock()
	p = h.panels[chatID]
	p.messageID = msgID
	h.panels[chatID] = p
	h.mu.Unlock()
	return nil
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func isNotFound(err error) bool {
	return errors.Is(err, session.ErrNotFound) || errors.Is(err, catalog.ErrNotFound)
}
