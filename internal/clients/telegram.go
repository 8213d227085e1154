package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/amaumene/autopost/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const notModified = "message is not modified"

// BotAPI is the part of *tgbotapi.BotAPI used for publishing.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type TelegramPublisher struct {
	bot     BotAPI
	chat    chatTarget
	limiter *rate.Limiter
}

// chatTarget is a numeric chat ID or a public @username.
type chatTarget struct {
	id       int64
	username string
}

func parseChatTarget(s string) (chatTarget, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return chatTarget{}, fmt.Errorf("empty chat: %w", domain.ErrInvalidInput)
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return chatTarget{id: id}, nil
	}
	return chatTarget{username: "@" + strings.TrimPrefix(s, "@")}, nil
}

func NewTelegramPublisher(bot BotAPI, dest string, limiter *rate.Limiter) (*TelegramPublisher, error) {
	chat, err := parseChatTarget(dest)
	if err != nil {
		return nil, fmt.Errorf("parsing destination channel: %w", err)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &TelegramPublisher{bot: bot, chat: chat, limiter: limiter}, nil
}

// Create posts the announcement as a photo with caption. It falls back to a
// text message when there is no poster, the caption is too long for a photo
// or Telegram rejects the photo.
func (p *TelegramPublisher) Create(ctx context.Context, posterURL, caption string) (domain.AnnouncementRef, error) {
	if posterURL != "" && utf8.RuneCountInString(caption) <= domain.PhotoCaptionLimit {
		ref, err := p.sendPhoto(ctx, posterURL, caption)
		if err == nil {
			return ref, nil
		}
		if isTransientError(err) {
			return domain.AnnouncementRef{}, err
		}
		log.WithFields(log.Fields{
			"poster": posterURL,
			"error":  err,
		}).Warn("photo announcement rejected, sending text")
	}
	return p.sendText(ctx, caption)
}

func (p *TelegramPublisher) sendPhoto(ctx context.Context, posterURL, caption string) (domain.AnnouncementRef, error) {
	var photo tgbotapi.PhotoConfig
	if p.chat.username != "" {
		photo = tgbotapi.NewPhotoToChannel(p.chat.username, tgbotapi.FileURL(posterURL))
	} else {
		photo = tgbotapi.NewPhoto(p.chat.id, tgbotapi.FileURL(posterURL))
	}
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML

	msg, err := p.send(ctx, photo)
	if err != nil {
		return domain.AnnouncementRef{}, err
	}
	return p.refFor(msg, domain.AnnouncementPhoto), nil
}

func (p *TelegramPublisher) sendText(ctx context.Context, text string) (domain.AnnouncementRef, error) {
	var message tgbotapi.MessageConfig
	if p.chat.username != "" {
		message = tgbotapi.NewMessageToChannel(p.chat.username, text)
	} else {
		message = tgbotapi.NewMessage(p.chat.id, text)
	}
	message.ParseMode = tgbotapi.ModeHTML
	message.DisableWebPagePreview = true

	msg, err := p.send(ctx, message)
	if err != nil {
		return domain.AnnouncementRef{}, err
	}
	return p.refFor(msg, domain.AnnouncementText), nil
}

func (p *TelegramPublisher) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return tgbotapi.Message{}, err
	}
	msg, err := p.bot.Send(c)
	if err != nil {
		return tgbotapi.Message{}, classifyError(err)
	}
	return msg, nil
}

func (p *TelegramPublisher) refFor(msg tgbotapi.Message, kind domain.AnnouncementKind) domain.AnnouncementRef {
	ref := domain.AnnouncementRef{
		ChatID:    p.chat.id,
		MessageID: msg.MessageID,
		Kind:      kind,
	}
	if msg.Chat != nil {
		ref.ChatID = msg.Chat.ID
	}
	if ref.ChatID == 0 {
		ref.ChannelUsername = p.chat.username
	}
	return ref
}

// Edit replaces the caption of a photo announcement or the text of a text
// one. An edit that changes nothing counts as success. A photo caption over
// the limit is rejected without a request.
func (p *TelegramPublisher) Edit(ctx context.Context, ref domain.AnnouncementRef, caption string) error {
	if ref.Kind != domain.AnnouncementText {
		if n := utf8.RuneCountInString(caption); n > domain.PhotoCaptionLimit {
			return fmt.Errorf("caption has %d characters, photo limit is %d: %w", n, domain.PhotoCaptionLimit, domain.ErrPublishRejected)
		}
	}

	base := tgbotapi.BaseEdit{
		ChatID:          ref.ChatID,
		ChannelUsername: ref.ChannelUsername,
		MessageID:       ref.MessageID,
	}

	var edit tgbotapi.Chattable
	switch ref.Kind {
	case domain.AnnouncementText:
		edit = tgbotapi.EditMessageTextConfig{
			BaseEdit:              base,
			Text:                  caption,
			ParseMode:             tgbotapi.ModeHTML,
			DisableWebPagePreview: true,
		}
	default:
		edit = tgbotapi.EditMessageCaptionConfig{
			BaseEdit:  base,
			Caption:   caption,
			ParseMode: tgbotapi.ModeHTML,
		}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := p.bot.Request(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return classifyError(err)
	}
	return nil
}

func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Message, notModified)
}

// isTransientError reports whether a retry may succeed: rate limits, server
// errors and anything that is not a Telegram API error.
func isTransientError(err error) bool {
	if errors.Is(err, domain.ErrPublishRejected) {
		return false
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}

func classifyError(err error) error {
	if isTransientError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrPublishRejected, err)
}
