// Package protocol defines the wire contract between the relay and the
// backend webhook: the normalized payload for inbound updates and the
// action envelope the backend answers with.
package protocol

import "encoding/json"

// MessageType classifies one normalized inbound update for the backend.
type MessageType string

const (
	MessageTypeCommand  MessageType = "command"
	MessageTypeText     MessageType = "text"
	MessageTypeCallback MessageType = "callback"
)

// Payload is the envelope POSTed to the backend for every inbound update.
// Pointer fields marshal as null when the platform event has no user or no
// textual content.
type Payload struct {
	UserID         *int64      `json:"user_id"`
	Username       *string     `json:"username"`
	ChatID         int64       `json:"chat_id"`
	SessionID      string      `json:"session_id"`
	MessageType    MessageType `json:"message_type"`
	MessageContent *string     `json:"message_content"`
	RawData        any         `json:"raw_data,omitempty"`
}

// ActionResponse is the backend's reply to one webhook exchange. The backend
// is untrusted input: every field may be absent or malformed, and an empty
// Action means no-op.
type ActionResponse struct {
	Action   string     `json:"action,omitempty"`
	Data     ActionData `json:"data,omitempty"`
	UserRole string     `json:"user_role,omitempty"`
}

// Button is one selectable option attached to a sent or edited message.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// ActionData carries an action's parameters. Accessors default missing or
// malformed fields instead of failing; unknown keys are ignored.
type ActionData map[string]any

// UnmarshalJSON accepts any JSON value and keeps only an object; everything
// else decodes as an empty mapping.
func (d *ActionData) UnmarshalJSON(raw []byte) error {
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		*d = ActionData{}
		return nil
	}

	*d = ActionData(values)
	return nil
}

// Text returns the action's message text, empty when absent.
func (d ActionData) Text() string {
	return d.stringValue("text")
}

// Photo returns the photo reference: a remote URL, a local file path, or a
// platform file id.
func (d ActionData) Photo() string {
	return d.stringValue("photo")
}

// Caption returns the optional photo caption.
func (d ActionData) Caption() string {
	return d.stringValue("caption")
}

// MessageID returns the explicit target message id, 0 when absent. JSON
// numbers arrive as float64; plain ints are accepted for callers that build
// the mapping directly.
func (d ActionData) MessageID() int {
	switch value := d["message_id"].(type) {
	case float64:
		return int(value)
	case int:
		return value
	case int64:
		return int(value)
	case json.Number:
		if parsed, err := value.Int64(); err == nil {
			return int(parsed)
		}
	}

	return 0
}

// Buttons returns the selectable options in input order. Entries that are
// not objects are skipped; missing fields default to empty strings.
func (d ActionData) Buttons() []Button {
	items, ok := d["buttons"].([]any)
	if !ok || len(items) == 0 {
		return nil
	}

	buttons := make([]Button, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		button := Button{}
		if text, ok := entry["text"].(string); ok {
			button.Text = text
		}
		if data, ok := entry["callback_data"].(string); ok {
			button.CallbackData = data
		}
		buttons = append(buttons, button)
	}

	return buttons
}

func (d ActionData) stringValue(key string) string {
	if value, ok := d[key].(string); ok {
		return value
	}

	return ""
}
