package sim

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderEvent records its dispatch in a shared log.
type orderEvent struct {
	time float64
	id   int
	log  *[]int
}

func (e *orderEvent) Time() float64 { return e.time }

func (e *orderEvent) Simulate(s *Simulator) []Event {
	*e.log = append(*e.log, e.id)
	return nil
}

func (e *orderEvent) String() string { return fmt.Sprintf("%.3f (order %d)", e.time, e.id) }

func TestEventQueue_TimeThenInsertionOrder(t *testing.T) {
	s := NewSimulator(1, time.Minute)
	var log []int

	for _, spec := range []struct {
		time float64
		id   int
	}{
		{2.0, 1}, {1.0, 2}, {2.0, 3}, {1.0, 4}, {0.5, 5}, {2.0, 6},
	} {
		s.Schedule(&orderEvent{time: spec.time, id: spec.id, log: &log})
	}

	for len(s.EventQueue) > 0 {
		s.Step()
	}

	// Distinct times dispatch in time order; equal times in insertion order.
	assert.Equal(t, []int{5, 2, 4, 1, 3, 6}, log)
}

func TestSimulator_ClockAdvancesMonotonically(t *testing.T) {
	s := NewSimulator(1, time.Minute)
	var log []int
	s.Schedule(&orderEvent{time: 3.0, id: 1, log: &log})
	s.Schedule(&orderEvent{time: 1.0, id: 2, log: &log})
	s.Schedule(&orderEvent{time: 2.0, id: 3, log: &log})

	var clocks []float64
	for len(s.EventQueue) > 0 {
		s.Step()
		clocks = append(clocks, s.Clock)
	}
	assert.Equal(t, []float64{1.0, 2.0, 3.0}, clocks)
}

func TestIngressQueue_FIFODelivery(t *testing.T) {
	s := NewSimulator(1, time.Minute)
	stream := rand.New(rand.NewSource(0))
	e := newTestFabricEndpoint(s, "EP-0", NewExponentialSampler(RateInstant, stream))

	for i := 0; i < 3; i++ {
		msg := testMessage(fmt.Sprintf("m%d", i))
		s.Schedule(NewQueueMessageEvent(0, e.Core().ID(), NewPayload(msg, NoNode, e.Core().ID())))
	}
	for len(s.EventQueue) > 0 {
		s.Step()
	}

	require.Len(t, e.received, 3)
	for i, p := range e.received {
		assert.Equal(t, testMessage(fmt.Sprintf("m%d", i)), p.Message)
	}
}

func TestNode_BusyIntervalDefersSecondPayload(t *testing.T) {
	s := NewSimulator(1, time.Minute)
	stream := rand.New(rand.NewSource(1))
	e := newTestFabricEndpoint(s, "EP-0", NewExponentialSampler(1.0, stream))

	s.Schedule(NewQueueMessageEvent(0, e.Core().ID(), NewPayload(testMessage("a"), NoNode, e.Core().ID())))
	s.Schedule(NewQueueMessageEvent(0, e.Core().ID(), NewPayload(testMessage("b"), NoNode, e.Core().ID())))
	for len(s.EventQueue) > 0 {
		s.Step()
	}

	require.Len(t, e.processedAt, 2)
	assert.Equal(t, 0.0, e.processedAt[0])
	// The second payload waits for the first busy interval to end.
	assert.Greater(t, e.processedAt[1], e.processedAt[0])
	assert.False(t, e.Core().Busy())
	assert.Zero(t, e.Core().QueueLen())
}

func TestSimulator_NotifyAtTimeSchedulesExpiry(t *testing.T) {
	s := NewSimulator(1, time.Minute)
	stream := rand.New(rand.NewSource(0))
	e := newTestFabricEndpoint(s, "EP-0", NewExponentialSampler(RateInstant, stream))

	s.NotifyAtTime(e.Core().ID(), 5.0, 1)
	require.Len(t, s.EventQueue, 1)
	line := s.Step()
	assert.Contains(t, line, "TimerExpiry")
	assert.Equal(t, 5.0, s.Clock)
}

func TestSimulator_IsOverOnEmptyQueue(t *testing.T) {
	s := NewSimulator(1, time.Minute)
	assert.True(t, s.IsOver())
}
