package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/logging"
)

func testBus(t *testing.T, inCap, outCap int) *Bus {
	t.Helper()
	return New(Config{InboundCapacity: inCap, OutboundCapacity: outCap}, logging.New(nil, "silent"))
}

func TestPublishConsumeInbound(t *testing.T) {
	b := testBus(t, 4, 4)
	ctx := context.Background()

	msg := domain.InboundMessage{Connector: "t", ConversationID: "c1", Content: "hi"}
	require.NoError(t, b.PublishInbound(ctx, msg))

	got, err := b.ConsumeInbound(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestInboundFIFO(t *testing.T) {
	b := testBus(t, 8, 8)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.PublishInbound(ctx, domain.InboundMessage{
			Connector: "t", ConversationID: "c1", Content: string(rune('a' + i)),
		}))
	}
	for i := 0; i < 5; i++ {
		got, err := b.ConsumeInbound(ctx)
		require.NoError(t, err)
		assert.Equal(t, string(rune('a'+i)), got.Content)
	}
}

func TestTryPublishFull(t *testing.T) {
	b := testBus(t, 2, 2)

	require.NoError(t, b.TryPublishInbound(domain.InboundMessage{Content: "1"}))
	require.NoError(t, b.TryPublishInbound(domain.InboundMessage{Content: "2"}))
	assert.ErrorIs(t, b.TryPublishInbound(domain.InboundMessage{Content: "3"}), ErrBusFull)
	assert.Equal(t, 2, b.InboundDepth())

	require.NoError(t, b.TryPublishOutbound(domain.OutboundMessage{Content: "1"}))
	require.NoError(t, b.TryPublishOutbound(domain.OutboundMessage{Content: "2"}))
	assert.ErrorIs(t, b.TryPublishOutbound(domain.OutboundMessage{Content: "3"}), ErrBusFull)
}

func TestPublishBlocksUntilConsumed(t *testing.T) {
	b := testBus(t, 1, 1)
	ctx := context.Background()

	require.NoError(t, b.PublishInbound(ctx, domain.InboundMessage{Content: "first"}))

	published := make(chan struct{})
	go func() {
		_ = b.PublishInbound(ctx, domain.InboundMessage{Content: "second"})
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish should block while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := b.ConsumeInbound(ctx)
	require.NoError(t, err)

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish should complete after a slot frees up")
	}
}

func TestPublishHonorsContext(t *testing.T) {
	b := testBus(t, 1, 1)
	require.NoError(t, b.TryPublishInbound(domain.InboundMessage{Content: "fill"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.PublishInbound(ctx, domain.InboundMessage{Content: "blocked"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsumeHonorsContext(t *testing.T) {
	b := testBus(t, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.ConsumeInbound(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatchFanout(t *testing.T) {
	b := testBus(t, 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	b.Subscribe("telegram", func(msg domain.OutboundMessage) {
		mu.Lock()
		order = append(order, "first:"+msg.Content)
		mu.Unlock()
	})
	b.Subscribe("telegram", func(msg domain.OutboundMessage) {
		mu.Lock()
		order = append(order, "second:"+msg.Content)
		mu.Unlock()
	})
	b.Subscribe("irc", func(msg domain.OutboundMessage) {
		mu.Lock()
		order = append(order, "irc:"+msg.Content)
		mu.Unlock()
	})

	go b.DispatchOutbound(ctx)

	require.NoError(t, b.PublishOutbound(ctx, domain.OutboundMessage{Connector: "telegram", Content: "hi"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first:hi", "second:hi"}, order)
}

func TestDispatchSubscriberPanicIsolated(t *testing.T) {
	b := testBus(t, 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 2)
	b.Subscribe("t", func(domain.OutboundMessage) { panic("boom") })
	b.Subscribe("t", func(msg domain.OutboundMessage) { got <- msg.Content })

	go b.DispatchOutbound(ctx)

	require.NoError(t, b.PublishOutbound(ctx, domain.OutboundMessage{Connector: "t", Content: "survives"}))

	select {
	case content := <-got:
		assert.Equal(t, "survives", content)
	case <-time.After(time.Second):
		t.Fatal("second subscriber should still receive the message")
	}
}

func TestDefaultCapacity(t *testing.T) {
	b := New(Config{}, logging.New(nil, "silent"))
	assert.Equal(t, DefaultCapacity, cap(b.inbound))
	assert.Equal(t, DefaultCapacity, cap(b.outbound))
}
