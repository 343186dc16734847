package pacing

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerFirstCallDoesNotWait(t *testing.T) {
	clock := NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	p := New(time.Second, clock)

	waited, err := p.Wait(context.Background())
	require.NoError(t, err)
	require.Zero(t, waited)
	require.Empty(t, clock.Sleeps())
}

func TestPacerSpacesSequentialCalls(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	p := New(time.Second, clock)

	var starts []time.Time
	for i := 0; i < 3; i++ {
		_, err := p.Wait(context.Background())
		require.NoError(t, err)
		starts = append(starts, clock.Now())
		clock.Advance(200 * time.Millisecond)
	}

	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), time.Second)
	}
	require.Equal(t, []time.Duration{800 * time.Millisecond, 800 * time.Millisecond}, clock.Sleeps())
}

func TestPacerNoWaitAfterIdleGap(t *testing.T) {
	clock := NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	p := New(time.Second, clock)

	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	clock.Advance(3 * time.Second)

	waited, err := p.Wait(context.Background())
	require.NoError(t, err)
	require.Zero(t, waited)
}

func TestPacerConcurrentCallersReserveDistinctSlots(t *testing.T) {
	p := New(40*time.Millisecond, nil)

	const callers = 4
	begin := time.Now()
	var (
		mu     sync.Mutex
		starts []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Wait(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(begin), time.Duration(i)*40*time.Millisecond)
	}
}

func TestPacerHonoursCancellation(t *testing.T) {
	p := New(time.Hour, nil)
	_, err := p.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultIsShared(t *testing.T) {
	require.Same(t, Default(), Default())
	require.Equal(t, DefaultInterval, Default().Interval())
}
