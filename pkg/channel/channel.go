// Package channel defines the boundary between chat-platform adapters and
// the relay core.
package channel

import "context"

// UpdateKind distinguishes the two inbound event families an adapter
// produces.
type UpdateKind string

const (
	// KindMessage is a user-authored chat message, text or media.
	KindMessage UpdateKind = "message"
	// KindCallback is a button press on an inline keyboard.
	KindCallback UpdateKind = "callback"
)

// Update is one platform event in platform-neutral form, immutable for the
// life of its dispatch cycle. UserID and Username are nil when the event has
// no associated user, such as a channel post.
type Update struct {
	Kind     UpdateKind
	ChatID   int64
	UserID   *int64
	Username *string

	// Text and Caption carry message content. CallbackData carries the
	// pressed button's payload; CallbackID is the platform token the adapter
	// uses to acknowledge the press after dispatch.
	Text         string
	Caption      string
	CallbackID   string
	CallbackData *string

	// Raw is the full original platform update, forwarded opaquely to the
	// backend.
	Raw any
}

// Handler processes one inbound update end to end.
type Handler func(ctx context.Context, update Update) error

// Adapter bridges one external chat platform (for example Telegram) into the
// relay.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
