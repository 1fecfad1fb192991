package dispatch

import (
	"context"

	"relaygram/pkg/protocol"
)

// Messenger is the chat-platform capability the executor drives. Sends
// return the platform id of the new message. An empty buttons slice means
// no keyboard.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendMenu(ctx context.Context, chatID int64, text string, buttons []protocol.Button) (int, error)
	SendPhoto(ctx context.Context, chatID int64, photo string, caption string) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, buttons []protocol.Button) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}
