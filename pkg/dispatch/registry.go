package dispatch

import (
	"context"
	"sort"

	"relaygram/pkg/protocol"
)

// Action names form the closed vocabulary the backend may emit. Resolution
// is case-sensitive exact match; anything outside the table is a logged
// no-op so the backend can evolve ahead of the relay.
const (
	ActionReply         = "reply"
	ActionShowMenu      = "show_menu"
	ActionSendPhoto     = "send_photo"
	ActionEditMessage   = "edit_message"
	ActionDeleteMessage = "delete_message"
)

// Handler executes one backend action against a chat.
type Handler func(ctx context.Context, chatID int64, data protocol.ActionData) Result

// registry is the fixed action table. It is populated once at construction
// and immutable afterwards, so lookups need no locking.
type registry struct {
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

func (r *registry) register(name string, handler Handler) {
	r.handlers[name] = handler
}

// resolve returns the handler for name; ok is false for names outside the
// table.
func (r *registry) resolve(name string) (Handler, bool) {
	handler, ok := r.handlers[name]
	return handler, ok
}

// names lists the registered action names in sorted order.
func (r *registry) names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
