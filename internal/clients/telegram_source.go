package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const pollTimeoutSeconds = 60

// BotUpdates is the long polling part of *tgbotapi.BotAPI.
type BotUpdates interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramSource delivers documents and videos posted to the source
// channel. Telegram redelivers unconfirmed updates after a restart, so
// delivery is at least once.
type TelegramSource struct {
	bot  BotUpdates
	chat chatTarget
}

func NewTelegramSource(bot BotUpdates, source string) (*TelegramSource, error) {
	chat, err := parseChatTarget(source)
	if err != nil {
		return nil, fmt.Errorf("parsing source channel: %w", err)
	}
	return &TelegramSource{bot: bot, chat: chat}, nil
}

func (s *TelegramSource) Run(ctx context.Context, handle domain.UploadHandler) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	cfg.AllowedUpdates = []string{"channel_post"}

	updates := s.bot.GetUpdatesChan(cfg)
	log.WithFields(log.Fields{
		"component": "telegram",
		"chat":      s.chat.String(),
	}).Info("listening for uploads")

	for {
		select {
		case <-ctx.Done():
			s.bot.StopReceivingUpdates()
			log.WithField("component", "telegram").Info("stopped listening for uploads")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if raw, ok := s.toUpload(update); ok {
				handle(ctx, raw)
			}
		}
	}
}

func (s *TelegramSource) toUpload(update tgbotapi.Update) (domain.RawUpload, bool) {
	post := update.ChannelPost
	if post == nil || post.Chat == nil || !s.chat.matches(post.Chat) {
		return domain.RawUpload{}, false
	}

	raw := domain.RawUpload{
		Caption:   post.Caption,
		ArrivedAt: time.Unix(int64(post.Date), 0),
		File:      domain.FileRef{ChatID: post.Chat.ID, MessageID: post.MessageID},
	}

	switch {
	case post.Document != nil:
		raw.Filename = post.Document.FileName
		raw.SizeBytes = int64(post.Document.FileSize)
		raw.File.FileID = post.Document.FileID
		raw.File.FileUniqueID = post.Document.FileUniqueID
	case post.Video != nil:
		raw.Filename = post.Video.FileName
		raw.SizeBytes = int64(post.Video.FileSize)
		raw.File.FileID = post.Video.FileID
		raw.File.FileUniqueID = post.Video.FileUniqueID
	default:
		return domain.RawUpload{}, false
	}

	if strings.TrimSpace(raw.Filename) == "" {
		raw.Filename = captionFilename(post.Caption)
	}
	if raw.Filename == "" {
		log.WithFields(log.Fields{
			"component": "telegram",
			"messageID": post.MessageID,
		}).Warn("skipping upload without filename or caption")
		return domain.RawUpload{}, false
	}
	return raw, true
}

func captionFilename(caption string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(caption), "\n")
	return strings.TrimSpace(line)
}

func (c chatTarget) matches(chat *tgbotapi.Chat) bool {
	if c.username != "" {
		return strings.EqualFold(strings.TrimPrefix(c.username, "@"), chat.UserName)
	}
	return c.id == chat.ID
}

func (c chatTarget) String() string {
	if c.username != "" {
		return c.username
	}
	return fmt.Sprintf("%d", c.id)
}
