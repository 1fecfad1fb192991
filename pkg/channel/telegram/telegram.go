package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"relaygram/pkg/channel"
	"relaygram/pkg/config"
	"relaygram/pkg/protocol"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second
const longPollTimeoutSeconds = 30

// maxWorkers bounds concurrent dispatch cycles; cycles for the same chat are
// serialized further downstream.
const maxWorkers = 8

// Adapter bridges Telegram updates into relay dispatch cycles and exposes
// the outbound platform capability the executor drives.
type Adapter struct {
	cfg       config.TelegramConfig
	bot       *telego.Bot
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter
// instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Adapter{
		cfg:       cfg,
		bot:       bot,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in logs and status reports.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and forwards accepted updates through
// handler. Updates run on a bounded worker pool, so cycles for distinct
// chats proceed concurrently.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        longPollTimeoutSeconds,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	workers := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, ok := a.convertUpdate(update)
			if !ok {
				continue
			}
			if !a.senderAllowed(inbound.UserID) {
				a.log.Debug("Ignoring update from unauthorized sender", "sender_id", senderLabel(inbound.UserID))
				continue
			}

			a.logInbound(inbound)

			workers <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-workers }()
				a.process(ctx, handler, inbound)
			}()
		}
	}
}

// process runs one dispatch cycle. Callback presses are acknowledged after
// the cycle completes no matter how it went: the platform keeps showing a
// progress state until answered.
func (a *Adapter) process(ctx context.Context, handler channel.Handler, update channel.Update) {
	var stopTyping context.CancelFunc
	if update.Kind == channel.KindMessage {
		stopTyping = a.startTypingIndicator(ctx, update.ChatID)
	}

	err := handler(ctx, update)
	if stopTyping != nil {
		stopTyping()
	}
	if err != nil {
		a.log.Error("Failed to process inbound update", "chat_id", update.ChatID, "error", err)
	}

	if update.Kind == channel.KindCallback {
		a.answerCallback(ctx, update.CallbackID)
	}
}

func (a *Adapter) answerCallback(ctx context.Context, callbackID string) {
	if callbackID == "" {
		return
	}

	if err := a.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: callbackID}); err != nil {
		a.log.Debug("Failed to answer callback query", "error", err)
	}
}

// convertUpdate maps one Telegram update onto the platform-neutral form.
// Updates of other kinds, and callbacks whose source message chat cannot be
// resolved, are skipped.
func (a *Adapter) convertUpdate(update telego.Update) (channel.Update, bool) {
	switch {
	case update.Message != nil:
		return messageUpdate(update.Message), true
	case update.CallbackQuery != nil:
		converted, ok := callbackUpdate(update.CallbackQuery)
		if !ok {
			a.log.Debug("Ignoring callback without resolvable chat", "callback_id", update.CallbackQuery.ID)
		}
		return converted, ok
	default:
		return channel.Update{}, false
	}
}

func messageUpdate(message *telego.Message) channel.Update {
	inbound := channel.Update{
		Kind:    channel.KindMessage,
		ChatID:  message.Chat.ID,
		Text:    message.Text,
		Caption: message.Caption,
		Raw:     message,
	}

	if message.From != nil {
		userID := message.From.ID
		inbound.UserID = &userID
		if message.From.Username != "" {
			username := message.From.Username
			inbound.Username = &username
		}
	}

	return inbound
}

func callbackUpdate(callback *telego.CallbackQuery) (channel.Update, bool) {
	var chatID int64
	switch message := callback.Message.(type) {
	case *telego.Message:
		chatID = message.Chat.ID
	case *telego.InaccessibleMessage:
		chatID = message.Chat.ID
	default:
		return channel.Update{}, false
	}

	userID := callback.From.ID
	inbound := channel.Update{
		Kind:       channel.KindCallback,
		ChatID:     chatID,
		UserID:     &userID,
		CallbackID: callback.ID,
		Raw:        callback,
	}
	if callback.From.Username != "" {
		username := callback.From.Username
		inbound.Username = &username
	}
	if callback.Data != "" {
		data := callback.Data
		inbound.CallbackData = &data
	}

	return inbound, true
}

// SendText sends a plain text message and returns its platform id.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	message, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}

	return message.MessageID, nil
}

// SendMenu sends text with an inline keyboard laid out one button per row.
func (a *Adapter) SendMenu(ctx context.Context, chatID int64, text string, buttons []protocol.Button) (int, error) {
	params := tu.Message(tu.ID(chatID), text)
	if markup := inlineKeyboard(buttons); markup != nil {
		params.ReplyMarkup = markup
	}

	message, err := a.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("send menu: %w", err)
	}

	return message.MessageID, nil
}

// SendPhoto sends a photo resolved from a URL, local file path, or platform
// file id, with an optional caption.
func (a *Adapter) SendPhoto(ctx context.Context, chatID int64, photo string, caption string) (int, error) {
	file, cleanup, err := resolvePhoto(photo)
	if err != nil {
		return 0, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	params := tu.Photo(tu.ID(chatID), file)
	if caption != "" {
		params.Caption = caption
	}

	message, err := a.bot.SendPhoto(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("send photo: %w", err)
	}

	return message.MessageID, nil
}

// EditText replaces a message's text and keyboard. Empty buttons remove the
// keyboard, since an edit replaces the whole message surface.
func (a *Adapter) EditText(ctx context.Context, chatID int64, messageID int, text string, buttons []protocol.Button) error {
	params := tu.EditMessageText(tu.ID(chatID), messageID, text)
	params.ReplyMarkup = inlineKeyboard(buttons)

	if _, err := a.bot.EditMessageText(ctx, params); err != nil {
		return fmt.Errorf("edit message text: %w", err)
	}

	return nil
}

// DeleteMessage removes a message from the chat.
func (a *Adapter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	params := &telego.DeleteMessageParams{ChatID: tu.ID(chatID), MessageID: messageID}
	if err := a.bot.DeleteMessage(ctx, params); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// inlineKeyboard lays out one button per row, preserving input order. Empty
// input yields no markup.
func inlineKeyboard(buttons []protocol.Button) *telego.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}

	rows := make([][]telego.InlineKeyboardButton, 0, len(buttons))
	for _, button := range buttons {
		rows = append(rows, []telego.InlineKeyboardButton{{
			Text:         button.Text,
			CallbackData: button.CallbackData,
		}})
	}

	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// resolvePhoto maps a photo reference onto a platform input form. Remote
// URLs pass through, readable local paths upload the file, anything else is
// treated as a platform file id.
func resolvePhoto(photo string) (telego.InputFile, func(), error) {
	if strings.HasPrefix(photo, "http://") || strings.HasPrefix(photo, "https://") {
		return telego.InputFile{URL: photo}, nil, nil
	}

	if info, err := os.Stat(photo); err == nil && !info.IsDir() {
		file, err := os.Open(photo)
		if err != nil {
			return telego.InputFile{}, nil, fmt.Errorf("open photo file: %w", err)
		}
		return tu.File(file), func() { _ = file.Close() }, nil
	}

	return telego.InputFile{FileID: photo}, nil, nil
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted. Events
// without a user never pass a configured allow list.
func (a *Adapter) senderAllowed(userID *int64) bool {
	if len(a.allowFrom) == 0 {
		return true
	}
	if userID == nil {
		return false
	}

	_, ok := a.allowFrom[strconv.FormatInt(*userID, 10)]
	return ok
}

func (a *Adapter) logInbound(update channel.Update) {
	switch update.Kind {
	case channel.KindCallback:
		data := ""
		if update.CallbackData != nil {
			data = *update.CallbackData
		}
		a.log.Info("Received callback", "chat_id", update.ChatID, "sender_id", senderLabel(update.UserID), "data", previewText(data))
	default:
		content := update.Text
		if content == "" {
			content = update.Caption
		}
		a.log.Info("Received message", "chat_id", update.ChatID, "sender_id", senderLabel(update.UserID), "content", previewText(content))
	}
}

func senderLabel(userID *int64) string {
	if userID == nil {
		return "none"
	}

	return strconv.FormatInt(*userID, 10)
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// startTypingIndicator sends an initial typing action and refreshes it
// periodically until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := a.bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
