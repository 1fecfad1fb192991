package relay

import (
	"context"
	"sync"
)

// chatQueue serializes dispatch cycles per chat so implicit last-message
// resolution never races: two updates for one chat run in arrival order,
// while distinct chats proceed concurrently. Each key holds a chain of
// signal channels; a cycle waits for its predecessor and releases its
// successor.
type chatQueue struct {
	mu     sync.Mutex
	chains map[int64]chan struct{}
}

func newChatQueue() *chatQueue {
	return &chatQueue{chains: make(map[int64]chan struct{})}
}

// Run executes fn once the chat's previous cycle has finished. Waiting is
// cancelable; fn itself is not. The chain link is released only after fn
// returns, so a successor can never overtake a running cycle.
func (q *chatQueue) Run(ctx context.Context, chatID int64, fn func(context.Context) error) error {
	q.mu.Lock()
	previous := q.chains[chatID]
	next := make(chan struct{})
	q.chains[chatID] = next
	q.mu.Unlock()

	if previous != nil {
		select {
		case <-previous:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	defer func() {
		close(next)
		q.mu.Lock()
		if q.chains[chatID] == next {
			delete(q.chains, chatID)
		}
		q.mu.Unlock()
	}()

	return fn(ctx)
}
