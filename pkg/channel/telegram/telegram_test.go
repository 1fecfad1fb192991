package telegram

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"relaygram/pkg/channel"
	"relaygram/pkg/protocol"

	"github.com/mymmrac/telego"
)

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}

	one := int64(1)
	two := int64(2)
	if !adapter.senderAllowed(&one) {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed(&two) {
		t.Fatal("expected sender 2 to be denied")
	}
	if adapter.senderAllowed(nil) {
		t.Fatal("expected anonymous sender to be denied by a configured allowlist")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed(&two) {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
	if !adapter.senderAllowed(nil) {
		t.Fatal("expected anonymous sender to be allowed when allowlist empty")
	}
}

func TestPreviewText(t *testing.T) {
	short := " hello "
	if got := previewText(short); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}
}

func TestMessageUpdate(t *testing.T) {
	message := &telego.Message{
		Chat: telego.Chat{ID: 42},
		Text: "/start",
		From: &telego.User{ID: 7, Username: "ada"},
	}

	update := messageUpdate(message)

	if update.Kind != channel.KindMessage {
		t.Fatalf("kind = %q, want %q", update.Kind, channel.KindMessage)
	}
	if update.ChatID != 42 {
		t.Fatalf("chat id = %d, want 42", update.ChatID)
	}
	if update.Text != "/start" {
		t.Fatalf("text = %q, want %q", update.Text, "/start")
	}
	if update.UserID == nil || *update.UserID != 7 {
		t.Fatalf("user id = %v, want 7", update.UserID)
	}
	if update.Username == nil || *update.Username != "ada" {
		t.Fatalf("username = %v, want ada", update.Username)
	}
	if raw, ok := update.Raw.(*telego.Message); !ok || raw != message {
		t.Fatal("raw update not forwarded")
	}
}

func TestMessageUpdateWithoutSender(t *testing.T) {
	update := messageUpdate(&telego.Message{Chat: telego.Chat{ID: 9}, Caption: "a photo"})

	if update.UserID != nil {
		t.Fatalf("user id = %v, want nil", update.UserID)
	}
	if update.Username != nil {
		t.Fatalf("username = %v, want nil", update.Username)
	}
	if update.Caption != "a photo" {
		t.Fatalf("caption = %q, want %q", update.Caption, "a photo")
	}
}

func TestCallbackUpdate(t *testing.T) {
	callback := &telego.CallbackQuery{
		ID:      "cb-1",
		From:    telego.User{ID: 7, Username: "ada"},
		Message: &telego.Message{Chat: telego.Chat{ID: 42}},
		Data:    "menu:settings",
	}

	update, ok := callbackUpdate(callback)
	if !ok {
		t.Fatal("expected callback to convert")
	}
	if update.Kind != channel.KindCallback {
		t.Fatalf("kind = %q, want %q", update.Kind, channel.KindCallback)
	}
	if update.ChatID != 42 {
		t.Fatalf("chat id = %d, want 42", update.ChatID)
	}
	if update.CallbackID != "cb-1" {
		t.Fatalf("callback id = %q, want cb-1", update.CallbackID)
	}
	if update.CallbackData == nil || *update.CallbackData != "menu:settings" {
		t.Fatalf("callback data = %v, want menu:settings", update.CallbackData)
	}
	if update.UserID == nil || *update.UserID != 7 {
		t.Fatalf("user id = %v, want 7", update.UserID)
	}
}

func TestCallbackUpdateInaccessibleMessage(t *testing.T) {
	callback := &telego.CallbackQuery{
		ID:      "cb-2",
		From:    telego.User{ID: 7},
		Message: &telego.InaccessibleMessage{Chat: telego.Chat{ID: 43}},
	}

	update, ok := callbackUpdate(callback)
	if !ok {
		t.Fatal("expected inaccessible-message callback to convert")
	}
	if update.ChatID != 43 {
		t.Fatalf("chat id = %d, want 43", update.ChatID)
	}
	if update.CallbackData != nil {
		t.Fatalf("callback data = %v, want nil", update.CallbackData)
	}
}

func TestCallbackUpdateWithoutChat(t *testing.T) {
	if _, ok := callbackUpdate(&telego.CallbackQuery{ID: "cb-3", From: telego.User{ID: 7}}); ok {
		t.Fatal("expected callback without source message to be skipped")
	}
}

func TestConvertUpdateSkipsOtherKinds(t *testing.T) {
	adapter := &Adapter{log: slog.Default()}

	if _, ok := adapter.convertUpdate(telego.Update{}); ok {
		t.Fatal("expected empty update to be skipped")
	}
}

func TestInlineKeyboard(t *testing.T) {
	if inlineKeyboard(nil) != nil {
		t.Fatal("expected no markup for zero buttons")
	}

	markup := inlineKeyboard([]protocol.Button{
		{Text: "Settings", CallbackData: "menu:settings"},
		{Text: "Help", CallbackData: "menu:help"},
	})
	if markup == nil {
		t.Fatal("expected markup")
	}
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(markup.InlineKeyboard))
	}
	for i, row := range markup.InlineKeyboard {
		if len(row) != 1 {
			t.Fatalf("row %d has %d buttons, want 1", i, len(row))
		}
	}
	if markup.InlineKeyboard[0][0].Text != "Settings" || markup.InlineKeyboard[0][0].CallbackData != "menu:settings" {
		t.Fatalf("unexpected first button %+v", markup.InlineKeyboard[0][0])
	}
	if markup.InlineKeyboard[1][0].Text != "Help" {
		t.Fatalf("unexpected second button %+v", markup.InlineKeyboard[1][0])
	}
}

func TestResolvePhotoURL(t *testing.T) {
	file, cleanup, err := resolvePhoto("https://example.com/cat.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup != nil {
		t.Fatal("expected no cleanup for URL photos")
	}
	if file.URL != "https://example.com/cat.png" {
		t.Fatalf("url = %q, want the input URL", file.URL)
	}
}

func TestResolvePhotoLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cat.png")
	if err := os.WriteFile(path, []byte("not really a png"), 0o600); err != nil {
		t.Fatalf("write temp photo: %v", err)
	}

	file, cleanup, err := resolvePhoto(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup for local file photos")
	}
	defer cleanup()

	if file.File == nil {
		t.Fatal("expected an upload reader for local file photos")
	}
}

func TestResolvePhotoFileID(t *testing.T) {
	file, cleanup, err := resolvePhoto("AgACAgIAAxkBAAI")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup != nil {
		t.Fatal("expected no cleanup for file-id photos")
	}
	if file.FileID != "AgACAgIAAxkBAAI" {
		t.Fatalf("file id = %q, want the input id", file.FileID)
	}
}
