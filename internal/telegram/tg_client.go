package telegram

import (
	"anonchat/backend/internal/localization"
	"anonchat/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Sender is the subset of *tgbotapi.BotAPI the transport uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

var errNoName = errors.New("telegram user has not introduced themselves yet")

// Client implements chathub.Client for one Telegram chat.
type Client struct {
	UserID    string
	ChatID    int64
	Bot       Sender
	Localizer *localization.Localizer

	mu   sync.RWMutex
	lang string
	name string
}

func NewClient(chatID int64, bot Sender, loc *localization.Localizer, lang string) *Client {
	return &Client{
		UserID:    strconv.FormatInt(chatID, 10),
		ChatID:    chatID,
		Bot:       bot,
		Localizer: loc,
		lang:      lang,
	}
}

func (c *Client) GetUserID() string { return c.UserID }

// Close is a no-op: updates arrive through the shared bot loop.
func (c *Client) Close() {}

func (c *Client) Lang() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lang
}

// SetProfile records how the user appears in Telegram and returns the name.
func (c *Client) SetProfile(from *tgbotapi.User) string {
	if from == nil {
		return ""
	}
	name := formatName(from.FirstName, from.LastName, from.UserName)
	c.setName(name)
	return name
}

func (c *Client) setName(name string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// DisplayName returns the cached name, asking Telegram with getChat when
// the user has not written since the client was built.
func (c *Client) DisplayName(context.Context) (string, error) {
	c.mu.RLock()
	name := c.name
	c.mu.RUnlock()
	if name != "" {
		return name, nil
	}

	resp, err := c.Bot.Request(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: c.ChatID}})
	if err != nil {
		return "", fmt.Errorf("get chat %d: %w", c.ChatID, err)
	}
	var chat tgbotapi.ChatFullInfo
	if err := json.Unmarshal(resp.Result, &chat); err != nil {
		return "", fmt.Errorf("decode chat %d: %w", c.ChatID, err)
	}
	name = formatName(chat.FirstName, chat.LastName, chat.UserName)
	if name == "" {
		return "", errNoName
	}
	c.setName(name)
	return name, nil
}

func formatName(first, last, username string) string {
	name := strings.TrimSpace(first + " " + last)
	if username == "" {
		return name
	}
	if name == "" {
		return "@" + username
	}
	return fmt.Sprintf("%s (@%s)", name, username)
}

// Deliver renders the notice and sends it. Relayed content goes out as the
// matching Telegram media type.
func (c *Client) Deliver(_ context.Context, n models.Notice) error {
	msg, err := c.render(n)
	if err != nil {
		return err
	}
	if _, err := c.Bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", c.ChatID, err)
	}
	return nil
}

// SendText sends a plain localized message.
func (c *Client) SendText(key string, args ...any) {
	c.send(tgbotapi.NewMessage(c.ChatID, c.Localizer.Format(c.Lang(), key, args...)))
}

func (c *Client) send(msg tgbotapi.Chattable) {
	if _, err := c.Bot.Send(msg); err != nil {
		log.Warn().Str("module", "telegram").Str("user_id", c.UserID).Err(err).Msg("failed to send message")
	}
}

func (c *Client) render(n models.Notice) (tgbotapi.Chattable, error) {
	lang := c.Lang()
	switch n.Kind {
	case models.NoticeRelay:
		if n.Content == nil {
			return nil, errors.New("relay notice without content")
		}
		return relayMessage(c.ChatID, *n.Content)
	case models.NoticeRevealOffer:
		msg := tgbotapi.NewMessage(c.ChatID, c.Localizer.RenderNotice(lang, n))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(c.Localizer.GetString(lang, "reveal_agree_button"), callbackRevealAgree),
				tgbotapi.NewInlineKeyboardButtonData(c.Localizer.GetString(lang, "reveal_decline_button"), callbackRevealDecline),
			),
		)
		return msg, nil
	}
	return tgbotapi.NewMessage(c.ChatID, c.Localizer.RenderNotice(lang, n)), nil
}

func relayMessage(chatID int64, content models.Content) (tgbotapi.Chattable, error) {
	file := tgbotapi.FileID(content.FileID)
	switch content.Type {
	case models.ContentText:
		return tgbotapi.NewMessage(chatID, content.Text), nil
	case models.ContentPhoto:
		msg := tgbotapi.NewPhoto(chatID, file)
		msg.Caption = content.Caption
		return msg, nil
	case models.ContentVideo:
		msg := tgbotapi.NewVideo(chatID, file)
		msg.Caption = content.Caption
		return msg, nil
	case models.ContentAnimation:
		msg := tgbotapi.NewAnimation(chatID, file)
		msg.Caption = content.Caption
		return msg, nil
	case models.ContentSticker:
		return tgbotapi.NewSticker(chatID, file), nil
	case models.ContentVoice:
		return tgbotapi.NewVoice(chatID, file), nil
	case models.ContentVideoNote:
		return tgbotapi.NewVideoNote(chatID, 0, file), nil
	}
	return nil, fmt.Errorf("unsupported content type %q", content.Type)
}

// extractContent maps an incoming message onto relayable content.
func extractContent(msg *tgbotapi.Message) (models.Content, bool) {
	switch {
	case msg.Text != "":
		return models.Content{Type: models.ContentText, Text: msg.Text}, true
	case len(msg.Photo) > 0:
		return models.Content{Type: models.ContentPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID, Caption: msg.Caption}, true
	case msg.Video != nil:
		return models.Content{Type: models.ContentVideo, FileID: msg.Video.FileID, Caption: msg.Caption}, true
	case msg.Animation != nil:
		return models.Content{Type: models.ContentAnimation, FileID: msg.Animation.FileID, Caption: msg.Caption}, true
	case msg.Sticker != nil:
		return models.Content{Type: models.ContentSticker, FileID: msg.Sticker.FileID}, true
	case msg.Voice != nil:
		return models.Content{Type: models.ContentVoice, FileID: msg.Voice.FileID}, true
	case msg.VideoNote != nil:
		return models.Content{Type: models.ContentVideoNote, FileID: msg.VideoNote.FileID}, true
	}
	return models.Content{}, false
}
