package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/imagecodec"
	"virtual-fitting-room/internal/logging"
	"virtual-fitting-room/internal/mediagroup"
	"virtual-fitting-room/internal/session"
	"virtual-fitting-room/internal/telegram"
	"virtual-fitting-room/internal/tryon"
)

type sentPhoto struct {
	chatID  int64
	img     imagecodec.Encoded
	caption string
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	keyboards []telegram.Keyboard
	edits     []string
	answers   []string
	photos    []sentPhoto
	downloads []string
	nextMsgID int

	file        []byte
	downloadErr error
}

func (f *fakeMessenger) SendTyping(int64) {}

func (f *fakeMessenger) SendText(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendTextWithKeyboard(chatID int64, text string, kb telegram.Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, kb)
	f.nextMsgID++
	return f.nextMsgID, nil
}

func (f *fakeMessenger) EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	f.keyboards = append(f.keyboards, kb)
	return nil
}

func (f *fakeMessenger) AnswerCallback(callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeMessenger) SendPhoto(chatID int64, img imagecodec.Encoded, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, sentPhoto{chatID: chatID, img: img, caption: caption})
	return nil
}

func (f *fakeMessenger) DownloadFile(ctx context.Context, fileID string, maxBytes int64) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, fileID)
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	return f.file, "image/png", nil
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeMessenger) lastKeyboard() telegram.Keyboard {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.keyboards) == 0 {
		return telegram.Keyboard{}
	}
	return f.keyboards[len(f.keyboards)-1]
}

func (f *fakeMessenger) countText(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.texts {
		if t == text {
			n++
		}
	}
	return n
}

func (f *fakeMessenger) photoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.photos)
}

type okGenerator struct{}

func (okGenerator) GenerateTryOn(ctx context.Context, user, product imagecodec.Encoded, desc string) (imagecodec.Encoded, error) {
	return imagecodec.Wrap("image/png", "UkVT"), nil
}

type staticImages struct{ img imagecodec.Encoded }

func (s staticImages) Fetch(ctx context.Context, uri string) (imagecodec.Encoded, error) {
	return s.img, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for i := 0; i < 12; i++ {
		img.Set(i, i, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const (
	testChatID = int64(100)
	testUserID = int64(7)
)

type failingGenerator struct{}

func (failingGenerator) GenerateTryOn(ctx context.Context, user, product imagecodec.Encoded, desc string) (imagecodec.Encoded, error) {
	return "", errors.New("model returned text only")
}

func newTestHandler(t *testing.T) (*Handler, *fakeMessenger, *session.Store) {
	t.Helper()
	return newTestHandlerWith(t, okGenerator{})
}

func newTestHandlerWith(t *testing.T, gen tryon.Generator) (*Handler, *fakeMessenger, *session.Store) {
	t.Helper()
	msgr := &fakeMessenger{file: testPNG(t)}

	var h *Handler
	store := session.NewStore(session.Options{
		Controller: tryon.Options{
			Generator: gen,
			Images:    staticImages{img: imagecodec.FromBytes("image/png", testPNG(t))},
		},
		OnChange: func(id string, st tryon.State) { h.Notify(id, st) },
	})
	t.Cleanup(store.CloseAll)

	h = New(Options{
		Messenger:      msgr,
		Catalog:        catalog.Default(),
		Sessions:       store,
		MaxUploadBytes: 1 << 20,
		Logger:         logging.Discard(),
	})
	return h, msgr, store
}

func commandUpdate(text string) telegram.Update {
	cmd := strings.Fields(text)[0]
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testUserID},
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func photoUpdate(fileID string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: testUserID},
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Photo:     []tgbotapi.PhotoSize{{FileID: fileID + "-small"}, {FileID: fileID}},
	}}
}

func callbackUpdate(from int64, data string) telegram.Update {
	return telegram.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: 50, Chat: &tgbotapi.Chat{ID: testChatID}},
		Data:    data,
	}}
}

func buttons(kb telegram.Keyboard) map[string]string {
	out := map[string]string{}
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil {
				out[b.Text] = *b.CallbackData
			}
		}
	}
	return out
}

func TestParseCallback(t *testing.T) {
	c, ok := parseCallback(cb(42, "pick", "3"))
	require.True(t, ok)
	assert.Equal(t, int64(42), c.ownerID)
	assert.Equal(t, "pick", c.action)
	assert.Equal(t, []string{"3"}, c.args)

	for _, bad := range []string{"", "tr", "tr:x:gen", "pv:1:gen", "tr:1:", "tr:1"} {
		_, ok := parseCallback(bad)
		assert.False(t, ok, bad)
	}
}

func TestCatalogCommand(t *testing.T) {
	h, msgr, _ := newTestHandler(t)

	require.NoError(t, h.HandleUpdate(context.Background(), commandUpdate("/catalog")))
	assert.Contains(t, msgr.lastText(), "The Ethereal Silk Gown (Evening Wear) - $")

	b := buttons(msgr.lastKeyboard())
	assert.Len(t, b, 6)
	assert.Equal(t, "tr:7:pick:1", b["Try on: The Ethereal Silk Gown"])
}

func TestTextAliases(t *testing.T) {
	h, msgr, _ := newTestHandler(t)

	update := telegram.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: testUserID},
		Chat: &tgbotapi.Chat{ID: testChatID},
		Text: " Help ",
	}}
	require.NoError(t, h.HandleUpdate(context.Background(), update))
	assert.Equal(t, helpText, msgr.lastText())

	update.Message.Text = "what is this"
	require.NoError(t, h.HandleUpdate(context.Background(), update))
	assert.Equal(t, hintText, msgr.lastText())
}

func TestPhotoWithoutSession(t *testing.T) {
	h, msgr, _ := newTestHandler(t)

	require.NoError(t, h.HandleUpdate(context.Background(), photoUpdate("f")))
	assert.Contains(t, msgr.lastText(), "/catalog")
	assert.Empty(t, msgr.downloads)
}

func TestFittingFlow(t *testing.T) {
	h, msgr, store := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "pick", "2"))))
	assert.Contains(t, msgr.lastText(), "Outfit: Midnight Velvet Cocktail Dress")
	assert.NotContains(t, buttons(msgr.lastKeyboard()), "Generate")

	require.NoError(t, h.HandleUpdate(ctx, photoUpdate("big")))
	assert.Equal(t, []string{"big"}, msgr.downloads)
	assert.Contains(t, msgr.lastText(), "Press Generate")
	gen := buttons(msgr.lastKeyboard())["Generate"]
	assert.Equal(t, "tr:7:gen", gen)

	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, gen)))
	require.Eventually(t, func() bool { return msgr.photoCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	msgr.mu.Lock()
	photo := msgr.photos[0]
	msgr.mu.Unlock()
	assert.Equal(t, testChatID, photo.chatID)
	assert.Equal(t, "data:image/png;base64,UkVT", photo.img.String())
	assert.Contains(t, photo.caption, "Midnight Velvet Cocktail Dress")

	sess, err := store.Get("100")
	require.NoError(t, err)
	assert.Equal(t, tryon.StatusSucceeded, sess.Controller.State().Status)

	require.NoError(t, h.HandleUpdate(ctx, commandUpdate("/close")))
	assert.Contains(t, msgr.lastText(), "Fitting closed")
	_, err = store.Get("100")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestForeignCallbackRejected(t *testing.T) {
	h, msgr, store := newTestHandler(t)

	require.NoError(t, h.HandleUpdate(context.Background(), callbackUpdate(999, cb(testUserID, "pick", "1"))))
	assert.Equal(t, []string{"This fitting belongs to someone else."}, msgr.answers)
	assert.Zero(t, store.Len())
}

func TestUnknownProductCallback(t *testing.T) {
	h, msgr, store := newTestHandler(t)

	require.NoError(t, h.HandleUpdate(context.Background(), callbackUpdate(testUserID, cb(testUserID, "pick", "404"))))
	assert.Equal(t, []string{"That outfit is no longer available."}, msgr.answers)
	assert.Zero(t, store.Len())
}

func TestOversizedPhoto(t *testing.T) {
	h, msgr, store := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "pick", "1"))))
	msgr.downloadErr = telegram.ErrFileTooLarge

	require.NoError(t, h.HandleUpdate(ctx, photoUpdate("huge")))

	msgr.mu.Lock()
	texts := append([]string(nil), msgr.texts...)
	msgr.mu.Unlock()
	assert.Contains(t, texts, tryon.TooLargeMessage)

	sess, err := store.Get("100")
	require.NoError(t, err)
	assert.False(t, sess.Controller.State().HasPhoto())
}

func TestGenerateWithoutPhotoCallback(t *testing.T) {
	h, msgr, _ := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "pick", "1"))))
	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "gen"))))

	msgr.mu.Lock()
	defer msgr.mu.Unlock()
	assert.Contains(t, msgr.answers, "Send a photo first.")
	assert.Empty(t, msgr.photos)
}

func TestMediaGroupUsesFirstPhoto(t *testing.T) {
	h, msgr, _ := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "pick", "5"))))
	h.HandleMediaGroup(ctx, mediagroup.Group{ChatID: testChatID, UserID: testUserID, FileIDs: []string{"first", "second"}})

	msgr.mu.Lock()
	defer msgr.mu.Unlock()
	assert.Equal(t, []string{"first"}, msgr.downloads)
	assert.Contains(t, msgr.texts, "Only the first photo of the album is used.")
}

func TestPanelKeyboardByStatus(t *testing.T) {
	p, err := catalog.Default().Get("1")
	require.NoError(t, err)

	assert.Empty(t, panelKeyboard(1, tryon.State{Status: tryon.StatusGenerating, Product: &p}).InlineKeyboard)

	failed := buttons(panelKeyboard(1, tryon.State{Status: tryon.StatusFailed, Product: &p}))
	assert.Equal(t, "tr:1:gen", failed["Try again"])

	done := buttons(panelKeyboard(1, tryon.State{Status: tryon.StatusSucceeded, Product: &p}))
	assert.Equal(t, "tr:1:reset", done["Try again"])
	assert.Equal(t, "tr:1:close", done["Close"])
}

func TestNotify_ResultSentOncePerGeneration(t *testing.T) {
	h, msgr, store := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "pick", "2"))))
	require.NoError(t, h.HandleUpdate(ctx, photoUpdate("me")))
	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "gen"))))
	require.Eventually(t, func() bool { return msgr.photoCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		sess, err := store.Get("100")
		return err == nil && sess.Controller.State().Status == tryon.StatusSucceeded
	}, 3*time.Second, 10*time.Millisecond)

	// Same outfit again keeps the session succeeded.
	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "pick", "2"))))
	assert.Equal(t, 1, msgr.photoCount())

	// A rejected upload keeps the status as well.
	msgr.mu.Lock()
	msgr.downloadErr = telegram.ErrFileTooLarge
	msgr.mu.Unlock()
	require.NoError(t, h.HandleUpdate(ctx, photoUpdate("huge")))
	assert.Equal(t, 1, msgr.photoCount())

	sess, err := store.Get("100")
	require.NoError(t, err)
	assert.Equal(t, tryon.StatusSucceeded, sess.Controller.State().Status)
}

func TestNotify_FailureReportedOnce(t *testing.T) {
	h, msgr, store := newTestHandlerWith(t, failingGenerator{})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "pick", "1"))))
	require.NoError(t, h.HandleUpdate(ctx, photoUpdate("me")))
	require.NoError(t, h.HandleUpdate(ctx, callbackUpdate(testUserID, cb(testUserID, "gen"))))
	require.Eventually(t, func() bool { return msgr.countText(tryon.FailureMessage) == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		sess, err := store.Get("100")
		return err == nil && sess.Controller.State().Status == tryon.StatusFailed
	}, 3*time.Second, 10*time.Millisecond)

	msgr.mu.Lock()
	msgr.downloadErr = telegram.ErrFileTooLarge
	msgr.mu.Unlock()
	require.NoError(t, h.HandleUpdate(ctx, photoUpdate("huge")))

	assert.Equal(t, 1, msgr.countText(tryon.FailureMessage))
	assert.Equal(t, 1, msgr.countText(tryon.TooLargeMessage))
	assert.Zero(t, msgr.photoCount())
}
