package clients

import (
	"context"
	"testing"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeUpdates struct {
	ch      chan tgbotapi.Update
	config  tgbotapi.UpdateConfig
	stopped chan struct{}
}

func newFakeUpdates() *fakeUpdates {
	return &fakeUpdates{ch: make(chan tgbotapi.Update, 8), stopped: make(chan struct{})}
}

func (f *fakeUpdates) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.config = config
	return f.ch
}

func (f *fakeUpdates) StopReceivingUpdates() {
	close(f.stopped)
}

func channelPost(chat *tgbotapi.Chat, id int) *tgbotapi.Message {
	return &tgbotapi.Message{MessageID: id, Chat: chat, Date: 1700000000}
}

func TestTelegramSource_Run(t *testing.T) {
	source := &tgbotapi.Chat{ID: -1001, UserName: "uploads"}
	other := &tgbotapi.Chat{ID: -1002, UserName: "elsewhere"}

	doc := channelPost(source, 1)
	doc.Document = &tgbotapi.Document{FileID: "f1", FileUniqueID: "u1", FileName: "Movie.2020.720p.mkv", FileSize: 700}

	video := channelPost(source, 2)
	video.Caption = "Movie (2020) 1080p.mkv\nuploaded by admin"
	video.Video = &tgbotapi.Video{FileID: "f2", FileUniqueID: "u2", FileSize: 1400}

	foreign := channelPost(other, 3)
	foreign.Document = &tgbotapi.Document{FileName: "Other.mkv"}

	text := channelPost(source, 4)
	text.Text = "hello"

	nameless := channelPost(source, 5)
	nameless.Document = &tgbotapi.Document{FileID: "f5"}

	updates := newFakeUpdates()
	for _, post := range []*tgbotapi.Message{doc, foreign, text, nameless, video} {
		updates.ch <- tgbotapi.Update{ChannelPost: post}
	}
	updates.ch <- tgbotapi.Update{Message: channelPost(source, 6)}

	src, err := NewTelegramSource(updates, "@Uploads")
	if err != nil {
		t.Fatalf("NewTelegramSource() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan domain.RawUpload, 8)
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func(_ context.Context, raw domain.RawUpload) {
			got <- raw
		})
	}()

	var uploads []domain.RawUpload
	for len(uploads) < 2 {
		select {
		case raw := <-got:
			uploads = append(uploads, raw)
		case <-time.After(time.Second):
			t.Fatalf("received %d uploads, want 2", len(uploads))
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	select {
	case <-updates.stopped:
	default:
		t.Error("StopReceivingUpdates() not called")
	}

	if uploads[0].Filename != "Movie.2020.720p.mkv" || uploads[0].SizeBytes != 700 || uploads[0].File.FileID != "f1" {
		t.Errorf("document upload = %+v", uploads[0])
	}
	if uploads[0].File.ChatID != -1001 || uploads[0].File.MessageID != 1 {
		t.Errorf("document file ref = %+v", uploads[0].File)
	}
	if !uploads[0].ArrivedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("ArrivedAt = %v", uploads[0].ArrivedAt)
	}
	if uploads[1].Filename != "Movie (2020) 1080p.mkv" || uploads[1].SizeBytes != 1400 {
		t.Errorf("video upload = %+v", uploads[1])
	}
	if updates.config.Timeout != pollTimeoutSeconds || len(updates.config.AllowedUpdates) != 1 {
		t.Errorf("update config = %+v", updates.config)
	}

	select {
	case extra := <-got:
		t.Errorf("unexpected upload %+v", extra)
	default:
	}
}

func TestTelegramSource_NumericChat(t *testing.T) {
	src, err := NewTelegramSource(newFakeUpdates(), "-1001")
	if err != nil {
		t.Fatalf("NewTelegramSource() error = %v", err)
	}

	post := channelPost(&tgbotapi.Chat{ID: -1001}, 1)
	post.Document = &tgbotapi.Document{FileName: "a.mkv"}
	if _, ok := src.toUpload(tgbotapi.Update{ChannelPost: post}); !ok {
		t.Error("toUpload() rejected a post from the numeric source chat")
	}

	post.Chat = &tgbotapi.Chat{ID: -1002}
	if _, ok := src.toUpload(tgbotapi.Update{ChannelPost: post}); ok {
		t.Error("toUpload() accepted a post from another chat")
	}
}

func TestNewTelegramSource_EmptyChat(t *testing.T) {
	if _, err := NewTelegramSource(newFakeUpdates(), " "); err == nil {
		t.Error("NewTelegramSource() error = nil, want error")
	}
}
