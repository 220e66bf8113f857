// Package telegram handles the integration with the Telegram Bot API.
// It turns updates into engine intents and renders engine notices back
// into Telegram messages.
package telegram

import (
	"anonchat/backend/internal/analysis"
	"anonchat/backend/internal/chathub"
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/localization"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

const (
	callbackInterest      = "interest:"
	callbackInterestsAny  = "interests:any"
	callbackInterestsDone = "interests:done"
	callbackRevealAgree   = "reveal:agree"
	callbackRevealDecline = "reveal:decline"
	callbackReport        = "report:"
)

// BotService is responsible for receiving Telegram updates and routing them to the engine.
type BotService struct {
	Bot             Sender
	Hub             *chathub.ManagerService
	Engine          chathub.Engine
	Localizer       *localization.Localizer
	DefaultLanguage string
	// BotUsername is used to build referral links.
	BotUsername string

	mu         sync.Mutex
	selections map[int64][]string
}

// NewBotService creates a new BotService instance and registers it as the
// hub's restorer for Telegram users.
func NewBotService(bot Sender, hub *chathub.ManagerService, eng chathub.Engine, loc *localization.Localizer, defaultLang, username string) *BotService {
	s := &BotService{
		Bot:             bot,
		Hub:             hub,
		Engine:          eng,
		Localizer:       loc,
		DefaultLanguage: defaultLang,
		BotUsername:     username,
		selections:      make(map[int64][]string),
	}
	hub.SetClientRestorer(s.RestoreClient)
	return s
}

// Run is the main loop for receiving Telegram updates.
func (s *BotService) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes a single update.
func (s *BotService) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		s.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		s.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// RestoreClient builds a client for a Telegram user that is not registered,
// e.g. a partner who has not written since a restart.
func (s *BotService) RestoreClient(userID string) (chathub.Client, error) {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, chathub.ErrNoClient
	}
	lang, name := s.DefaultLanguage, ""
	if u, err := s.Engine.Profile(context.Background(), userID); err == nil {
		if u.Language != "" {
			lang = u.Language
		}
		name = u.DisplayName
	}
	c := NewClient(chatID, s.Bot, s.Localizer, lang)
	c.setName(name)
	return c, nil
}

// getOrCreateClient registers the user with the engine and the hub.
func (s *BotService) getOrCreateClient(ctx context.Context, chatID int64, from *tgbotapi.User) (*Client, bool, error) {
	userID := strconv.FormatInt(chatID, 10)
	lang := s.DefaultLanguage
	if from != nil {
		lang = s.pickLanguage(from.LanguageCode)
	}
	u, created, err := s.Engine.EnsureUser(ctx, userID, lang)
	if err != nil {
		return nil, false, err
	}
	if u.Language != "" {
		lang = u.Language
	}

	var c *Client
	if existing, ok := s.Hub.Lookup(userID); ok {
		if c, ok = existing.(*Client); !ok {
			log.Error().Str("module", "telegram").Str("user_id", userID).Msg("registered client is not a telegram client")
		}
	}
	if c == nil {
		c = NewClient(chatID, s.Bot, s.Localizer, lang)
		s.Hub.Register(c)
	}
	if name := c.SetProfile(from); name != "" && name != u.DisplayName {
		if err := s.Engine.RememberName(ctx, userID, name); err != nil {
			log.Warn().Str("module", "telegram").Str("user_id", userID).Err(err).Msg("failed to persist display name")
		}
	}
	return c, created, nil
}

func (s *BotService) pickLanguage(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexByte(code, '-'); i > 0 {
		code = code[:i]
	}
	if slices.Contains(s.Localizer.Languages(), code) {
		return code
	}
	return s.DefaultLanguage
}

func (s *BotService) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	c, created, err := s.getOrCreateClient(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		log.Error().Str("module", "telegram").Int64("chat_id", msg.Chat.ID).Err(err).Msg("failed to register user")
		return
	}

	if msg.IsCommand() {
		s.handleCommand(ctx, c, msg, created)
		return
	}

	content, ok := extractContent(msg)
	if !ok {
		c.SendText("media_unsupported")
		return
	}
	if err := s.Hub.Relay(ctx, c.UserID, content); err != nil {
		s.replyError(c, err)
	}
}

func (s *BotService) handleCommand(ctx context.Context, c *Client, msg *tgbotapi.Message, created bool) {
	args := strings.Fields(msg.Text)
	var err error

	switch msg.Command() {
	case "start":
		c.SendText("welcome")
		if created && len(args) > 1 {
			if rerr := s.Engine.ApplyReferral(ctx, c.UserID, args[1]); rerr != nil {
				log.Info().Str("module", "telegram").Str("user_id", c.UserID).Str("referrer_id", args[1]).Err(rerr).Msg("referral not applied")
			}
		}
	case "search":
		s.clearSelection(c.ChatID)
		s.sendInterestsKeyboard(c)
	case "stop":
		err = s.stop(ctx, c.UserID)
	case "next":
		_, err = s.Engine.Next(ctx, c.UserID)
	case "reveal":
		err = s.Engine.RequestReveal(ctx, c.UserID)
	case "balance":
		u, perr := s.Engine.Profile(ctx, c.UserID)
		if perr != nil {
			err = perr
			break
		}
		c.SendText("balance", u.Balance)
	case "referrals":
		u, perr := s.Engine.Profile(ctx, c.UserID)
		if perr != nil {
			err = perr
			break
		}
		link := fmt.Sprintf("https://t.me/%s?start=%s", s.BotUsername, c.UserID)
		c.SendText("referrals", link, u.ReferralCount)
	case "unban":
		_, err = s.Engine.RequestUnban(ctx, c.UserID)
	case "report":
		s.sendReportKeyboard(c)
	default:
		c.SendText("unknown_command")
	}

	if err != nil {
		s.replyError(c, err)
	}
}

// stop ends the chat, or the search when there is no chat.
func (s *BotService) stop(ctx context.Context, userID string) error {
	err := s.Engine.EndChat(ctx, userID)
	if !errors.Is(err, engine.ErrNotInChat) {
		return err
	}
	if cerr := s.Engine.CancelSearch(ctx, userID); !errors.Is(cerr, engine.ErrNotSearching) {
		return cerr
	}
	return err
}

func (s *BotService) replyError(c *Client, err error) {
	if errors.Is(err, chathub.ErrMessageBlocked) {
		c.SendText("message_blocked")
		return
	}
	if engine.KindOf(err) == engine.KindUnknown {
		log.Error().Str("module", "telegram").Str("user_id", c.UserID).Err(err).Msg("request failed")
	}
	c.send(tgbotapi.NewMessage(c.ChatID, s.Localizer.RenderError(c.Lang(), err)))
}

func (s *BotService) interestsKeyboard(lang string, selected []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, interest := range config.AvailableInterests {
		label := interest
		if slices.Contains(selected, interest) {
			label = "✅ " + interest
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, callbackInterest+interest))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(s.Localizer.GetString(lang, "interests_any_button"), callbackInterestsAny),
		tgbotapi.NewInlineKeyboardButtonData(s.Localizer.GetString(lang, "interests_done_button"), callbackInterestsDone),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (s *BotService) sendInterestsKeyboard(c *Client) {
	msg := tgbotapi.NewMessage(c.ChatID, s.Localizer.GetString(c.Lang(), "choose_interests"))
	msg.ReplyMarkup = s.interestsKeyboard(c.Lang(), nil)
	c.send(msg)
}

func (s *BotService) sendReportKeyboard(c *Client) {
	lang := c.Lang()
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range analysis.Types() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(s.Localizer.GetString(lang, "report_type_"+t), callbackReport+t),
		))
	}
	msg := tgbotapi.NewMessage(c.ChatID, s.Localizer.GetString(lang, "report_choose"))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	c.send(msg)
}

func (s *BotService) toggleSelection(chatID int64, interest string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.selections[chatID]
	if i := slices.Index(cur, interest); i >= 0 {
		cur = slices.Delete(cur, i, i+1)
	} else {
		cur = append(cur, interest)
	}
	s.selections[chatID] = cur
	return slices.Clone(cur)
}

func (s *BotService) clearSelection(chatID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.selections[chatID]
	delete(s.selections, chatID)
	return cur
}

func (s *BotService) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil {
		return
	}
	c, _, err := s.getOrCreateClient(ctx, q.Message.Chat.ID, q.From)
	if err != nil {
		log.Error().Str("module", "telegram").Int64("chat_id", q.Message.Chat.ID).Err(err).Msg("failed to register user")
		return
	}

	answer := ""
	data := q.Data
	switch {
	case strings.HasPrefix(data, callbackInterest):
		interest := strings.TrimPrefix(data, callbackInterest)
		if !slices.Contains(config.AvailableInterests, interest) {
			break
		}
		selected := s.toggleSelection(c.ChatID, interest)
		edit := tgbotapi.NewEditMessageReplyMarkup(c.ChatID, q.Message.MessageID, s.interestsKeyboard(c.Lang(), selected))
		if _, err := s.Bot.Request(edit); err != nil {
			log.Debug().Str("module", "telegram").Str("user_id", c.UserID).Err(err).Msg("failed to update keyboard")
		}
	case data == callbackInterestsAny:
		s.clearSelection(c.ChatID)
		err = s.search(ctx, c.UserID, nil)
	case data == callbackInterestsDone:
		err = s.search(ctx, c.UserID, s.clearSelection(c.ChatID))
	case data == callbackRevealAgree, data == callbackRevealDecline:
		err = s.Engine.DecideReveal(ctx, c.UserID, data == callbackRevealAgree)
		if err == nil {
			answer = s.Localizer.GetString(c.Lang(), "reveal_recorded")
		}
	case strings.HasPrefix(data, callbackReport):
		err = s.Hub.Report(ctx, c.UserID, strings.TrimPrefix(data, callbackReport), "")
		if err == nil {
			answer = s.Localizer.GetString(c.Lang(), "report_done")
		}
	}

	if _, rerr := s.Bot.Request(tgbotapi.NewCallback(q.ID, answer)); rerr != nil {
		log.Debug().Str("module", "telegram").Str("user_id", c.UserID).Err(rerr).Msg("failed to answer callback")
	}
	if err != nil {
		s.replyError(c, err)
	}
}

func (s *BotService) search(ctx context.Context, userID string, interests []string) error {
	_, err := s.Engine.RequestSearch(ctx, userID, interests)
	return err
}
