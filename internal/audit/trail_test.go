package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStorage struct {
	mu      sync.Mutex
	batches [][]DecisionEvent
}

func (f *fakeStorage) WriteBatch(_ context.Context, events []DecisionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]DecisionEvent, len(events))
	copy(cp, events)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeStorage) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestTrail_StopFlushesEverything(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, 1000, time.Hour, zap.NewNop())
	trail.Start()

	for i := 0; i < 42; i++ {
		trail.Record(DecisionEvent{ID: "evt", AgentID: "agent-1", Action: "ALLOW"})
	}
	trail.Stop()

	assert.Equal(t, 42, storage.total())
}

func TestTrail_BatchLimitTriggersFlush(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, 1000, time.Hour, zap.NewNop())
	trail.Start()
	defer trail.Stop()

	// Тикер стоит на часе: flush может случиться только по набору сотни
	for i := 0; i < 150; i++ {
		trail.Record(DecisionEvent{ID: "evt", Action: "DENY"})
	}

	require.Eventually(t, func() bool {
		storage.mu.Lock()
		defer storage.mu.Unlock()
		return len(storage.batches) >= 1 && len(storage.batches[0]) == 100
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTrail_TickerFlushesPartialBatch(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, 1000, 20*time.Millisecond, zap.NewNop())
	trail.Start()
	defer trail.Stop()

	trail.Record(DecisionEvent{ID: "evt", Action: "MASK"})

	require.Eventually(t, func() bool {
		return storage.total() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTrail_RecordAfterStopIsDropped(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, 10, time.Hour, zap.NewNop())
	trail.Start()
	trail.Stop()

	// Не должно паниковать на закрытом канале
	trail.Record(DecisionEvent{ID: "late"})
	assert.Equal(t, 0, storage.total())
}

func TestTrail_TimestampDefaulted(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, 10, time.Hour, zap.NewNop())
	trail.Start()

	trail.Record(DecisionEvent{ID: "evt"})
	trail.Stop()

	require.Equal(t, 1, storage.total())
	assert.False(t, storage.batches[0][0].Timestamp.IsZero())
}
