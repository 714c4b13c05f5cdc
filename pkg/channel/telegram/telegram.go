// Package telegram implements the Telegram channel adapter on top of the
// Bot API via telego.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"chatbridge/pkg/channel"
	"chatbridge/pkg/config"
	"chatbridge/pkg/message"
)

// Accept @username or plain username (Telegram minimum length 5).
var usernameRe = regexp.MustCompile(`^@?[A-Za-z0-9_]{5,}$`)

// E.164-like phone pattern: optional + and 7..15 digits.
var phoneRe = regexp.MustCompile(`^\+?\d{7,15}$`)

// Adapter bridges Telegram updates into canonical messages and delivers
// outgoing text by username or numeric chat id.
type Adapter struct {
	channel.TextOnly

	cfg config.TelegramConfig
	log *slog.Logger

	mu      sync.RWMutex
	state   channel.State
	handler channel.Handler
	bot     *telego.Bot
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAdapter validates Telegram configuration and constructs an adapter.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("channels.telegram.token is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:   cfg,
		log:   log.With("component", "channel.telegram"),
		state: channel.StateStopped,
	}, nil
}

// Name returns the channel identifier used in the registry and logs.
func (a *Adapter) Name() message.Channel {
	return message.ChannelTelegram
}

// OnMessage registers the inbound handler. Must be called before Start.
func (a *Adapter) OnMessage(handler channel.Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

// State reports the adapter lifecycle state.
func (a *Adapter) State() channel.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Adapter) setState(state channel.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
}

// Start opens the bot transport and begins long polling for updates.
func (a *Adapter) Start(ctx context.Context) error {
	a.setState(channel.StateStarting)

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		a.setState(channel.StateStopped)
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := bot.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		cancel()
		a.setState(channel.StateStopped)
		return fmt.Errorf("start long polling: %w", err)
	}

	a.mu.Lock()
	a.bot = bot
	a.cancel = cancel
	a.done = make(chan struct{})
	a.state = channel.StateRunning
	a.mu.Unlock()

	go a.consume(pollCtx, updates)

	a.log.Info("Telegram adapter started")
	return nil
}

// Stop cancels long polling and waits for the update loop to drain.
func (a *Adapter) Stop(_ context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.cancel = nil
	a.state = channel.StateStopping
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	a.setState(channel.StateStopped)
	a.log.Info("Telegram adapter stopped")
	return nil
}

func (a *Adapter) consume(ctx context.Context, updates <-chan telego.Update) {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			a.handleUpdate(ctx, update)
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, update telego.Update) {
	incoming := update.Message
	if incoming == nil || incoming.From == nil {
		return
	}
	if incoming.From.IsBot {
		// Echoes of our own sends loop back as bot messages.
		return
	}

	text := strings.TrimSpace(incoming.Text)
	if text == "" {
		a.log.Debug("Skipping non-text update", "update_id", update.UpdateID)
		return
	}

	senderID := strconv.FormatInt(incoming.From.ID, 10)
	chatID := strconv.FormatInt(incoming.Chat.ID, 10)
	senderName := strings.TrimSpace(incoming.From.FirstName)
	if senderName == "" {
		senderName = incoming.From.Username
	}

	raw := message.Document{
		"text":     text,
		"from_id":  senderID,
		"username": incoming.From.Username,
		"name":     senderName,
	}

	msg := message.UnifiedMessage{
		Channel:     message.ChannelTelegram,
		SenderID:    senderID,
		RecipientID: chatID,
		SenderName:  senderName,
		MessageID:   strconv.Itoa(incoming.MessageID),
		Content:     message.TextContent{Text: text},
		Raw:         raw,
	}

	a.mu.RLock()
	handler := a.handler
	a.mu.RUnlock()

	if handler == nil {
		a.log.Warn("No inbound handler set, dropping message", "sender_id", senderID)
		return
	}
	if err := handler(ctx, msg); err != nil {
		a.log.Error("Inbound handler failed", "sender_id", senderID, "error", err)
	}
}

// SendText delivers text to a recipient expressed as @username, username,
// "id:<n>", or a bare numeric chat id. Phone numbers cannot be addressed
// through the Bot API and are rejected.
func (a *Adapter) SendText(ctx context.Context, recipientID string, content message.TextContent) error {
	a.mu.RLock()
	bot := a.bot
	a.mu.RUnlock()

	if bot == nil {
		return errors.New("telegram adapter is not started")
	}

	target, err := resolveChatID(recipientID)
	if err != nil {
		return err
	}

	if _, err := bot.SendMessage(ctx, tu.Message(target, content.Text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	a.log.Info("Sent message", "recipient_id", recipientID)
	return nil
}

// resolveChatID maps a derived recipient string onto a Bot API chat target.
func resolveChatID(recipientID string) (telego.ChatID, error) {
	rid := strings.TrimSpace(recipientID)
	if rid == "" {
		return telego.ChatID{}, errors.New("recipient id is empty")
	}

	if strings.HasPrefix(rid, "+") && phoneRe.MatchString(rid) {
		return telego.ChatID{}, fmt.Errorf("cannot address %q: the bot API does not deliver by phone number", rid)
	}

	if after, found := strings.CutPrefix(rid, "id:"); found {
		rid = strings.TrimSpace(after)
	}

	if numeric, err := strconv.ParseInt(rid, 10, 64); err == nil {
		return tu.ID(numeric), nil
	}

	if usernameRe.MatchString(rid) {
		if !strings.HasPrefix(rid, "@") {
			rid = "@" + rid
		}
		return tu.Username(rid), nil
	}

	return telego.ChatID{}, fmt.Errorf("recipient %q must be @username, id:<n>, or a numeric chat id", recipientID)
}
