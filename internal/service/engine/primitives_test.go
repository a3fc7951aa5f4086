package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jgivc/downloadr/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDSet(t *testing.T) {
	s := newIDSet()

	assert.True(t, s.TryAdd("a"))
	assert.False(t, s.TryAdd("a"))
	assert.True(t, s.Has("a"))

	added, exists := s.TryAddBelow("a", 5)
	assert.False(t, added)
	assert.True(t, exists)

	added, exists = s.TryAddBelow("b", 1)
	assert.False(t, added)
	assert.False(t, exists)

	added, _ = s.TryAddBelow("b", 2)
	assert.True(t, added)
	assert.Equal(t, 2, s.Len())

	s.Remove("a")
	assert.False(t, s.Has("a"))

	s.Add("c")
	s.Clear()
	assert.Zero(t, s.Len())
}

func TestIDSetClaimIsExclusive(t *testing.T) {
	s := newIDSet()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if added, _ := s.TryAddBelow("x", 10); added {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestWorkQueue(t *testing.T) {
	q := newWorkQueue()

	assert.True(t, q.Push(&entity.Item{ID: "a"}))
	assert.False(t, q.Push(&entity.Item{ID: "a"}))
	assert.True(t, q.Push(&entity.Item{ID: "b"}))
	assert.Equal(t, 2, q.Len())

	ctx := context.Background()

	item, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", item.ID)

	// Popped ids may be pushed again.
	assert.True(t, q.Push(&entity.Item{ID: "a"}))

	q.Close()
	assert.False(t, q.Push(&entity.Item{ID: "c"}))

	// Items left at close are still handed out.
	item, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "b", item.ID)

	item, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", item.ID)

	_, ok = q.Pop(ctx)
	assert.False(t, ok)
}

func TestWorkQueuePopWaits(t *testing.T) {
	q := newWorkQueue()

	got := make(chan string, 1)
	go func() {
		item, ok := q.Pop(context.Background())
		if ok {
			got <- item.ID
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(&entity.Item{ID: "late"})

	select {
	case id := <-got:
		assert.Equal(t, "late", id)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}

func TestRateSampler(t *testing.T) {
	start := time.Unix(0, 0)
	s := newRateSampler(250*time.Millisecond, start)

	_, ok := s.Add(10, start.Add(100*time.Millisecond))
	assert.False(t, ok)

	rate, ok := s.Add(15, start.Add(250*time.Millisecond))
	require.True(t, ok)
	assert.InDelta(t, 100.0, rate, 1e-9)

	rate, ok = s.Add(100, start.Add(750*time.Millisecond))
	require.True(t, ok)
	assert.InDelta(t, 200.0, rate, 1e-9)
}

func TestSmoothRate(t *testing.T) {
	avg := smoothRate(nil, 100)
	require.NotNil(t, avg)
	assert.InDelta(t, 100.0, *avg, 1e-9)

	avg = smoothRate(avg, 200)
	assert.InDelta(t, 130.0, *avg, 1e-9)
}
