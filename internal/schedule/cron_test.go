package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/switchboard/internal/bus"
	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/logging"
)

func testBus(t *testing.T, inboundCapacity int) *bus.Bus {
	t.Helper()
	return bus.New(bus.Config{InboundCapacity: inboundCapacity}, logging.New(nil, "silent"))
}

func TestNewRejectsBadJobs(t *testing.T) {
	b := testBus(t, 4)
	log := logging.New(nil, "silent")

	cases := []struct {
		name string
		job  Job
	}{
		{"empty name", Job{Expr: "* * * * *", Message: "hi"}},
		{"empty message", Job{Name: "j", Expr: "* * * * *"}},
		{"bad expression", Job{Name: "j", Expr: "not a cron expr", Message: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(b, []Job{tc.job}, log)
			assert.Error(t, err)
		})
	}
}

func TestNewRegistersJobs(t *testing.T) {
	b := testBus(t, 4)
	s, err := New(b, []Job{
		{Name: "daily", Expr: "0 9 * * *", Message: "morning check"},
		{Name: "hourly", Expr: "@hourly", Message: "hourly check"},
	}, logging.New(nil, "silent"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())
}

func TestFirePublishesSyntheticMessage(t *testing.T) {
	b := testBus(t, 4)
	s, err := New(b, nil, logging.New(nil, "silent"))
	require.NoError(t, err)

	s.fire(Job{Name: "daily", Message: "morning check"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := b.ConsumeInbound(ctx)
	require.NoError(t, err)
	assert.Equal(t, Connector, msg.Connector)
	assert.Equal(t, "daily", msg.ConversationID)
	assert.Equal(t, "morning check", msg.Content)
	assert.Equal(t, domain.KeyFor("cron", "daily"), msg.SessionKey())
	assert.False(t, msg.Timestamp.IsZero())
}

func TestFireDropsTickWhenBusFull(t *testing.T) {
	b := testBus(t, 1)
	s, err := New(b, nil, logging.New(nil, "silent"))
	require.NoError(t, err)

	s.fire(Job{Name: "j", Message: "one"})
	s.fire(Job{Name: "j", Message: "two"}) // dropped, queue full

	assert.Equal(t, 1, b.InboundDepth())
}
