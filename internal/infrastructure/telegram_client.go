package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/huduma/answer-service/internal/entities"
	"github.com/huduma/answer-service/internal/interfaces"
	"github.com/huduma/answer-service/internal/logger"
	"github.com/huduma/answer-service/internal/metrics"
)

// botAPI is the part of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	StopReceivingUpdates()
}

// TelegramClient long-polls a bot and answers every text message through
// the chat handler.
type TelegramClient struct {
	bot      botAPI
	handler  interfaces.ChatHandler
	limiter  *MessageRateLimiter
	welcome  string
	logger   logger.Logger
	inflight sync.WaitGroup
}

func NewTelegramClient(token string, handler interfaces.ChatHandler, limiter *MessageRateLimiter, welcome string, log logger.Logger) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	log.Info("telegram bot authorized", map[string]interface{}{"username": bot.Self.UserName})
	return newTelegramClient(bot, handler, limiter, welcome, log), nil
}

func newTelegramClient(bot botAPI, handler interfaces.ChatHandler, limiter *MessageRateLimiter, welcome string, log logger.Logger) *TelegramClient {
	return &TelegramClient{
		bot:     bot,
		handler: handler,
		limiter: limiter,
		welcome: welcome,
		logger:  log,
	}
}

// Run polls until ctx is cancelled, then waits for in-flight replies.
func (t *TelegramClient) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	defer t.inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.inflight.Add(1)
			go func() {
				defer t.inflight.Done()
				t.handleUpdate(ctx, update)
			}()
		}
	}
}

func (t *TelegramClient) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Chat == nil {
		return
	}
	chatID := update.Message.Chat.ID
	sender := strconv.FormatInt(chatID, 10)

	if update.Message.IsCommand() && update.Message.Command() == "start" {
		t.reply(ctx, sender, t.welcome)
		return
	}
	if update.Message.Text == "" {
		return
	}
	if t.limiter != nil && !t.limiter.Allow("telegram:"+sender) {
		metrics.InboundThrottled.WithLabelValues(entities.PlatformTelegram).Inc()
		t.logger.Warn("telegram sender throttled", map[string]interface{}{"chat_id": chatID})
		return
	}

	_, _ = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	env := t.handler.Handle(ctx, entities.Message{
		ID:       strconv.Itoa(update.Message.MessageID),
		From:     sender,
		Content:  update.Message.Text,
		Platform: entities.PlatformTelegram,
	}, nil)
	t.reply(ctx, sender, env.Reply)
}

func (t *TelegramClient) reply(ctx context.Context, to, content string) {
	if err := t.SendMessage(ctx, to, content); err != nil {
		t.logger.WithError(err).Error("failed to send telegram reply", map[string]interface{}{"chat_id": to})
	}
}

// SendMessage implements interfaces.Messenger. No parse mode is set.
func (t *TelegramClient) SendMessage(_ context.Context, to, content string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", to, err)
	}
	_, err = t.bot.Send(tgbotapi.NewMessage(chatID, content))
	return err
}
