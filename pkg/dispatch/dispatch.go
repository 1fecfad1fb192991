// Package dispatch translates backend action responses into chat-platform
// calls. Implicit edit/delete targets resolve through the per-chat
// last-message record in the session store; every failure degrades to a
// logged no-op toward the chat user.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"relaygram/pkg/protocol"
	"relaygram/pkg/session"
)

// Dispatcher resolves action names against the fixed table and executes the
// matching handler.
type Dispatcher struct {
	messenger Messenger
	sessions  *session.Store
	actions   *registry
	log       *slog.Logger
}

// NewDispatcher builds the dispatcher with its closed action table.
func NewDispatcher(messenger Messenger, sessions *session.Store, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		messenger: messenger,
		sessions:  sessions,
		actions:   newRegistry(),
		log:       log.With("component", "dispatch"),
	}

	d.actions.register(ActionReply, d.reply)
	d.actions.register(ActionShowMenu, d.showMenu)
	d.actions.register(ActionSendPhoto, d.sendPhoto)
	d.actions.register(ActionEditMessage, d.editMessage)
	d.actions.register(ActionDeleteMessage, d.deleteMessage)

	return d
}

// Actions lists the supported action names.
func (d *Dispatcher) Actions() []string {
	return d.actions.names()
}

// Dispatch executes the backend's action against the chat. An absent action
// is a silent no-op; an unknown one is logged and skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, chatID int64, response protocol.ActionResponse) Result {
	if response.Action == "" {
		return NoOp()
	}

	handler, ok := d.actions.resolve(response.Action)
	if !ok {
		d.log.Warn("Unknown action from backend", "action", response.Action, "chat_id", chatID)
		return NoOp()
	}

	return handler(ctx, chatID, response.Data)
}

// reply sends data.text as a new message and records it as the chat's last
// bot message.
func (d *Dispatcher) reply(ctx context.Context, chatID int64, data protocol.ActionData) Result {
	messageID, err := d.messenger.SendText(ctx, chatID, data.Text())
	if err != nil {
		d.log.Error("Reply send failed", "chat_id", chatID, "error", err)
		return Failed(fmt.Errorf("send reply: %w", err))
	}

	d.sessions.RecordLastMessage(chatID, messageID)
	return Sent(messageID)
}

// showMenu sends data.text with one inline option per button, in input
// order, and records the sent message as last. No buttons means a plain
// message.
func (d *Dispatcher) showMenu(ctx context.Context, chatID int64, data protocol.ActionData) Result {
	messageID, err := d.messenger.SendMenu(ctx, chatID, data.Text(), data.Buttons())
	if err != nil {
		d.log.Error("Menu send failed", "chat_id", chatID, "error", err)
		return Failed(fmt.Errorf("send menu: %w", err))
	}

	d.sessions.RecordLastMessage(chatID, messageID)
	return Sent(messageID)
}

// sendPhoto sends data.photo with the optional caption. Photo messages are
// not later editable as text in this protocol, so the last-message record
// is left alone.
func (d *Dispatcher) sendPhoto(ctx context.Context, chatID int64, data protocol.ActionData) Result {
	messageID, err := d.messenger.SendPhoto(ctx, chatID, data.Photo(), data.Caption())
	if err != nil {
		d.log.Error("Photo send failed", "chat_id", chatID, "error", err)
		return Failed(fmt.Errorf("send photo: %w", err))
	}

	return Sent(messageID)
}

// editMessage rewrites the target message's text and keyboard. The target
// is data.message_id when present, else the chat's last bot message, which
// stays recorded as last. No resolvable target is a no-op.
func (d *Dispatcher) editMessage(ctx context.Context, chatID int64, data protocol.ActionData) Result {
	messageID := data.MessageID()
	if messageID == 0 {
		cached, ok := d.sessions.LastMessage(chatID)
		if !ok {
			d.log.Debug("No message to edit", "chat_id", chatID)
			return NoOp()
		}
		messageID = cached
	}

	if err := d.messenger.EditText(ctx, chatID, messageID, data.Text(), data.Buttons()); err != nil {
		d.log.Error("Edit failed", "chat_id", chatID, "message_id", messageID, "error", err)
		return Failed(fmt.Errorf("edit message %d: %w", messageID, err))
	}

	return Sent(messageID)
}

// deleteMessage removes the target message. A target resolved through the
// cache consumes the record up front: the message stops existing whether or
// not the platform call succeeds. An explicit data.message_id leaves the
// cache untouched.
func (d *Dispatcher) deleteMessage(ctx context.Context, chatID int64, data protocol.ActionData) Result {
	messageID := data.MessageID()
	if messageID == 0 {
		cached, ok := d.sessions.TakeLastMessage(chatID)
		if !ok {
			d.log.Debug("No message to delete", "chat_id", chatID)
			return NoOp()
		}
		messageID = cached
	}

	if err := d.messenger.DeleteMessage(ctx, chatID, messageID); err != nil {
		d.log.Warn("Delete failed", "chat_id", chatID, "message_id", messageID, "error", err)
		return Failed(fmt.Errorf("delete message %d: %w", messageID, err))
	}

	return Sent(messageID)
}
