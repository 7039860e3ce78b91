package handlers

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const hintText = "Send /catalog to pick an outfit, then send a photo of yourself."

const helpText = "Virtual Fitting Room\n\n" +
	"1. /catalog - pick an outfit\n" +
	"2. Send a clear, well-lit photo of yourself\n" +
	"3. Press Generate and wait a few seconds\n\n" +
	"Commands:\n" +
	"/catalog - browse outfits\n" +
	"/close - end the current fitting\n" +
	"/help - this message"

// commandAliases maps plain-text messages onto commands so shoppers can type
// "catalog" or "help" without the slash.
var commandAliases = map[string]string{
	"catalog":   "catalog",
	"catalogue": "catalog",
	"shop":      "catalog",
	"outfits":   "catalog",
	"help":      "help",
	"?":         "help",
	"close":     "close",
	"stop":      "close",
	"start":     "start",
}

func commandFromText(text string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	cmd, ok := commandAliases[t]
	return cmd, ok
}

func (h *Handler) handleCommand(chatID, userID int64, msg *tgbotapi.Message) error {
	return h.runCommand(chatID, userID, msg.Command())
}

func (h *Handler) runCommand(chatID, userID int64, cmd string) error {
	switch cmd {
	case "start":
		return h.tg.SendText(chatID, "Welcome to the Virtual Fitting Room!\n\n"+helpText)
	case "help":
		return h.tg.SendText(chatID, helpText)
	case "catalog":
		return h.sendCatalog(chatID, userID)
	case "close":
		if h.closeSession(chatID) {
			return h.tg.SendText(chatID, "Fitting closed. Send /catalog to start again.")
		}
		return h.tg.SendText(chatID, "There is no open fitting. Send /catalog to start.")
	default:
		return h.tg.SendText(chatID, "Unknown command. Use /help.")
	}
}

func (h *Handler) sendCatalog(chatID, userID int64) error {
	products := h.catalog.List()
	if len(products) == 0 {
		return h.tg.SendText(chatID, "The catalog is empty.")
	}

	var b strings.Builder
	b.WriteString("Collection\n\n")
	for _, p := range products {
		b.WriteString(fmt.Sprintf("%s (%s) - $%s\n", p.Name, p.Category, p.Price.StringFixed(2)))
	}
	_, err := h.tg.SendTextWithKeyboard(chatID, strings.TrimSpace(b.String()), catalogKeyboard(userID, products))
	return err
}
