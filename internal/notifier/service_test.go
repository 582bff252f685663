package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movebot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fail  int // fail the first N sends
	gotCh chan string
}

func newFakeSender() *fakeSender { return &fakeSender{gotCh: make(chan string, 16)} }

func (f *fakeSender) Ready(ctx context.Context) error { return nil }

func (f *fakeSender) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("flaky")
	}
	f.sent = append(f.sent, text)
	f.gotCh <- text
	return nil
}

func startService(t *testing.T, cfg Config, snd Sender) *Service {
	t.Helper()
	cfg.Enabled = true
	svc := New(cfg, snd, logx.Nop(), nil)
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc
}

func TestEnqueueDelivers(t *testing.T) {
	snd := newFakeSender()
	svc := startService(t, Config{RatePerSec: 100}, snd)

	require.NoError(t, svc.Enqueue(context.Background(), Message{ID: "a", Title: "Time to Move", Body: "Let's do Squats!"}))

	select {
	case text := <-snd.gotCh:
		assert.Equal(t, "Time to Move\nLet's do Squats!", text)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	hist := svc.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "a", hist[0].ID)
}

func TestDedupWindowSuppressesRepeats(t *testing.T) {
	snd := newFakeSender()
	svc := startService(t, Config{RatePerSec: 100, DedupWindow: time.Hour}, snd)

	msg := Message{ID: "trig-7", Title: "Move"}
	require.NoError(t, svc.Enqueue(context.Background(), msg))
	// Identical re-emission within the window is swallowed, not an error.
	require.NoError(t, svc.Enqueue(context.Background(), msg))
	require.NoError(t, svc.Enqueue(context.Background(), msg))

	select {
	case <-snd.gotCh:
	case <-time.After(2 * time.Second):
		t.Fatal("first message not delivered")
	}
	select {
	case <-snd.gotCh:
		t.Fatal("duplicate delivered inside dedup window")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRetryEventuallyDelivers(t *testing.T) {
	snd := newFakeSender()
	snd.fail = 2
	svc := startService(t, Config{RatePerSec: 100, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, snd)

	require.NoError(t, svc.Enqueue(context.Background(), Message{ID: "r", Title: "Move"}))

	select {
	case <-snd.gotCh:
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered after retries")
	}
}

func TestEnqueueWhenDisabled(t *testing.T) {
	svc := New(Config{}, newFakeSender(), logx.Nop(), nil)
	err := svc.Enqueue(context.Background(), Message{ID: "x"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestEnqueueAfterStop(t *testing.T) {
	snd := newFakeSender()
	svc := New(Config{Enabled: true}, snd, logx.Nop(), nil)
	svc.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Stop(ctx)

	err := svc.Enqueue(context.Background(), Message{ID: "late"})
	assert.ErrorIs(t, err, ErrStopped)
}
