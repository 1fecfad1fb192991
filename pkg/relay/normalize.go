// Package relay wires inbound channel updates through the backend exchange
// and the action dispatcher, one serialized cycle per chat.
package relay

import (
	"strings"

	"relaygram/pkg/channel"
	"relaygram/pkg/protocol"
	"relaygram/pkg/session"
)

const commandPrefix = "/"

// Normalizer converts platform updates into backend payloads, minting the
// chat's session id on first contact. Normalization is total: every
// well-formed update yields a payload, never an error.
type Normalizer struct {
	sessions *session.Store
}

// NewNormalizer builds a normalizer over the shared session store.
func NewNormalizer(sessions *session.Store) *Normalizer {
	return &Normalizer{sessions: sessions}
}

// Normalize maps one update onto the webhook payload. The raw platform
// update rides along opaquely for the backend's benefit.
func (n *Normalizer) Normalize(update channel.Update) protocol.Payload {
	return protocol.Payload{
		UserID:         update.UserID,
		Username:       update.Username,
		ChatID:         update.ChatID,
		SessionID:      n.sessions.EnsureSession(update.ChatID),
		MessageType:    messageType(update),
		MessageContent: messageContent(update),
		RawData:        update.Raw,
	}
}

// messageType classifies the update. The command prefix applies to message
// text only; a caption starting with "/" is still a plain text message.
func messageType(update channel.Update) protocol.MessageType {
	if update.Kind == channel.KindCallback {
		return protocol.MessageTypeCallback
	}
	if strings.HasPrefix(update.Text, commandPrefix) {
		return protocol.MessageTypeCommand
	}

	return protocol.MessageTypeText
}

// messageContent picks the forwarded content: callback data for button
// presses, else text, else the media caption, else null.
func messageContent(update channel.Update) *string {
	if update.Kind == channel.KindCallback {
		return update.CallbackData
	}

	if update.Text != "" {
		text := update.Text
		return &text
	}
	if update.Caption != "" {
		caption := update.Caption
		return &caption
	}

	return nil
}
