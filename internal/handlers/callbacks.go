package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/tryon"
)

const callbackPrefix = "tr"

// callback is a parsed "tr:<owner>:<action>[:args...]" payload.
type callback struct {
	ownerID int64
	action  string
	args    []string
}

func parseCallback(data string) (callback, bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) < 3 || parts[0] != callbackPrefix {
		return callback{}, false
	}
	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || parts[2] == "" {
		return callback{}, false
	}
	return callback{ownerID: ownerID, action: parts[2], args: parts[3:]}, true
}

func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", callbackPrefix, ownerID, strings.Join(parts, ":"))
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}
	c, ok := parseCallback(q.Data)
	if !ok {
		return nil
	}
	if c.ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This fitting belongs to someone else.")
		return nil
	}

	chatID := q.Message.Chat.ID
	h.mu.Lock()
	p := h.panels[chatID]
	p.messageID = q.Message.MessageID
	h.panels[chatID] = p
	h.mu.Unlock()

	if c.action == "pick" {
		if len(c.args) == 0 {
			return nil
		}
		st, err := h.openSession(chatID, c.ownerID, c.args[0])
		switch {
		case isNotFound(err):
			_ = h.tg.AnswerCallback(q.ID, "That outfit is no longer available.")
			return nil
		case errors.Is(err, tryon.ErrGenerationInFlight):
			_ = h.tg.AnswerCallback(q.ID, "Please wait for the current try-on to finish.")
			return nil
		case err != nil:
			return err
		}
		_ = h.tg.AnswerCallback(q.ID, st.Product.Name)
		// The catalog message stays; the panel is a new message.
		return h.renderPanel(chatID, st, false)
	}

	if c.action == "catalog" {
		_ = h.tg.AnswerCallback(q.ID, "")
		return h.sendCatalog(chatID, c.ownerID)
	}

	if c.action == "close" {
		h.closeSession(chatID)
		_ = h.tg.AnswerCallback(q.ID, "Closed")
		return h.tg.EditTextWithKeyboard(chatID, q.Message.MessageID,
			"Fitting closed. Send /catalog to start again.", emptyKeyboard())
	}

	sess, err := h.sessions.Get(chatKey(chatID))
	if err != nil {
		_ = h.tg.AnswerCallback(q.ID, "This fitting has expired. Send /catalog.")
		return nil
	}

	var st tryon.State
	switch c.action {
	case "gen":
		st, err = sess.Controller.GenerateAsync(h.baseCtx)
		if err == nil && st.Status == tryon.StatusGenerating {
			_ = h.tg.AnswerCallback(q.ID, "Generating...")
		} else if err == nil {
			_ = h.tg.AnswerCallback(q.ID, "Send a photo first.")
		}
	case "reset":
		st, err = sess.Controller.ResetResult()
		if err == nil {
			_ = h.tg.AnswerCallback(q.ID, "Send a new photo or generate again.")
		}
	case "rmphoto":
		st, err = sess.Controller.RemovePhoto()
		if err == nil {
			_ = h.tg.AnswerCallback(q.ID, "Photo removed")
		}
	default:
		_ = h.tg.AnswerCallback(q.ID, "")
		return nil
	}

	if c.action == "gen" && err == nil {
		// A fast generation may already have finished.
		st = sess.Controller.State()
	}

	switch {
	case errors.Is(err, tryon.ErrGenerationInFlight):
		_ = h.tg.AnswerCallback(q.ID, "Already generating, please wait.")
		return nil
	case errors.Is(err, tryon.ErrInvalidTransition):
		_ = h.tg.AnswerCallback(q.ID, "Not available right now.")
		return nil
	case errors.Is(err, tryon.ErrSessionClosed):
		_ = h.tg.AnswerCallback(q.ID, "This fitting was closed. Send /catalog.")
		return nil
	case err != nil:
		return err
	}

	return h.renderPanel(chatID, st, true)
}

func panelText(st tryon.State) string {
	var b strings.Builder
	b.WriteString("Virtual Fitting Room\n\n")
	if st.Product != nil {
		b.WriteString(fmt.Sprintf("Outfit: %s\n", st.Product.Name))
		b.WriteString(fmt.Sprintf("Price: $%s\n", st.Product.Price.StringFixed(2)))
	} else {
		b.WriteString("Outfit: (none)\n")
	}
	if st.HasPhoto() {
		b.WriteString("Photo: saved\n")
	} else {
		b.WriteString("Photo: (none)\n")
	}

	b.WriteString("\n")
	switch st.Status {
	case tryon.StatusIdle:
		b.WriteString("Send a photo of yourself to continue.")
	case tryon.StatusAwaitingPhoto:
		b.WriteString("Press Generate to see the outfit on you.")
	case tryon.StatusGenerating:
		b.WriteString("Tailoring your look... this can take a little while.")
	case tryon.StatusSucceeded:
		b.WriteString("Done! Send another photo or try a different outfit.")
	case tryon.StatusFailed:
		b.WriteString(st.Error)
	}
	if st.UploadError != "" && st.Status != tryon.StatusGenerating {
		b.WriteString("\n\nLast upload: " + st.UploadError)
	}
	return b.String()
}

func panelKeyboard(ownerID int64, st tryon.State) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	switch st.Status {
	case tryon.StatusGenerating:
		// No actions while a generation is in flight.
		return emptyKeyboard()
	case tryon.StatusAwaitingPhoto, tryon.StatusFailed:
		label := "Generate"
		if st.Status == tryon.StatusFailed {
			label = "Try again"
		}
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "gen")),
			tgbotapi.NewInlineKeyboardButtonData("Remove photo", cb(ownerID, "rmphoto")),
		})
	case tryon.StatusSucceeded:
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Try again", cb(ownerID, "reset")),
		})
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Other outfits", cb(ownerID, "catalog")),
		tgbotapi.NewInlineKeyboardButtonData("Close", cb(ownerID, "close")),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func catalogKeyboard(ownerID int64, products []catalog.Product) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range products {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Try on: "+truncateLine(p.Name, 40), cb(ownerID, "pick", p.ID)),
		})
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}

func emptyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
}
