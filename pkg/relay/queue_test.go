package relay

import (
	"context"
	"sync"
	"testing"
	"time"
)

func chainHead(q *chatQueue, chatID int64) chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.chains[chatID]
}

func waitChainChange(t *testing.T, q *chatQueue, chatID int64, previous chan struct{}) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if chainHead(q, chatID) != previous {
			return
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatal("waiter never registered in chain")
}

func TestChatQueueSerializesSameChat(t *testing.T) {
	t.Parallel()

	queue := newChatQueue()
	ctx := context.Background()

	gate := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = queue.Run(ctx, 1, func(context.Context) error {
			close(started)
			<-gate
			return nil
		})
	}()
	<-started

	const cycles = 10
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < cycles; i++ {
		i := i
		previous := chainHead(queue, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = queue.Run(ctx, 1, func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		waitChainChange(t, queue, 1, previous)
	}

	close(gate)
	wg.Wait()

	if len(order) != cycles {
		t.Fatalf("expected %d cycles, got %d", cycles, len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("cycle %d ran out of order: got %d (%v)", i, got, order)
		}
	}
}

func TestChatQueueOverlapNeverExceedsOnePerChat(t *testing.T) {
	t.Parallel()

	queue := newChatQueue()
	ctx := context.Background()

	var mu sync.Mutex
	running := map[int64]int{}
	var wg sync.WaitGroup

	for chat := int64(1); chat <= 4; chat++ {
		for i := 0; i < 10; i++ {
			chat := chat
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = queue.Run(ctx, chat, func(context.Context) error {
					mu.Lock()
					running[chat]++
					if running[chat] > 1 {
						mu.Unlock()
						t.Errorf("chat %d ran %d cycles at once", chat, running[chat])
						return nil
					}
					mu.Unlock()

					time.Sleep(time.Millisecond)

					mu.Lock()
					running[chat]--
					mu.Unlock()
					return nil
				})
			}()
		}
	}

	wg.Wait()
}

func TestChatQueueDistinctChatsInterleave(t *testing.T) {
	t.Parallel()

	queue := newChatQueue()
	ctx := context.Background()

	blocked := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = queue.Run(ctx, 1, func(context.Context) error {
			close(blocked)
			<-unblock
			return nil
		})
	}()

	<-blocked

	done := make(chan struct{})
	go func() {
		_ = queue.Run(ctx, 2, func(context.Context) error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle for chat 2 blocked behind chat 1")
	}

	close(unblock)
}

func TestChatQueueCancelWhileWaiting(t *testing.T) {
	t.Parallel()

	queue := newChatQueue()

	blocked := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = queue.Run(context.Background(), 1, func(context.Context) error {
			close(blocked)
			<-unblock
			return nil
		})
	}()

	<-blocked

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- queue.Run(ctx, 1, func(context.Context) error { return nil })
	}()

	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("canceled waiter did not return")
	}

	close(unblock)
}

func TestChatQueueReleasesIdleChains(t *testing.T) {
	t.Parallel()

	queue := newChatQueue()
	ctx := context.Background()

	for chat := int64(1); chat <= 8; chat++ {
		if err := queue.Run(ctx, chat, func(context.Context) error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	queue.mu.Lock()
	remaining := len(queue.chains)
	queue.mu.Unlock()

	if remaining != 0 {
		t.Fatalf("expected idle queue to drop chain links, %d remain", remaining)
	}
}
