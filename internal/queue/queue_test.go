package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestPerTypeFIFO reproduces spec §8 scenario 3: episodic-flush F1
// (latency 2s... scaled down for tests) then F2 (fast) then a
// semantic-flush S1 (fast, different type). Completion order must be
// S1, F1, F2 -- never F2 before F1.
func TestPerTypeFIFO(t *testing.T) {
	q := New()
	var mu sync.Mutex
	var order []string
	record := func(name string) { mu.Lock(); order = append(order, name); mu.Unlock() }

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		_, _ = q.Send(context.Background(), "ep", func(ctx context.Context) (any, error) {
			time.Sleep(60 * time.Millisecond)
			record("F1")
			return nil, nil
		}, "episodic")
	}()
	// give F1 a head start so it enqueues first.
	time.Sleep(5 * time.Millisecond)
	go func() {
		defer wg.Done()
		_, _ = q.Send(context.Background(), "ep", func(ctx context.Context) (any, error) {
			record("F2")
			return nil, nil
		}, "episodic")
	}()
	go func() {
		defer wg.Done()
		_, _ = q.Send(context.Background(), "sem", func(ctx context.Context) (any, error) {
			record("S1")
			return nil, nil
		}, "semantic")
	}()

	wg.Wait()
	require.Equal(t, []string{"S1", "F1", "F2"}, order)
}

func TestSameTypeSerialization(t *testing.T) {
	q := New()
	var active int32
	var mu sync.Mutex
	maxActive := 0
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Send(context.Background(), "a", func(ctx context.Context) (any, error) {
				mu.Lock()
				active++
				if int(active) > maxActive {
					maxActive = int(active)
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil, nil
			}, "typeA")
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxActive)
}

func TestDifferentTypesConcurrent(t *testing.T) {
	q := New()
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan time.Duration, 2)
	begin := time.Now()
	for _, at := range []string{"typeA", "typeB"} {
		at := at
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _ = q.Send(context.Background(), "x", func(ctx context.Context) (any, error) {
				time.Sleep(40 * time.Millisecond)
				return nil, nil
			}, at)
			results <- time.Since(begin)
		}()
	}
	close(start)
	wg.Wait()
	close(results)
	for d := range results {
		require.Less(t, d, 80*time.Millisecond)
	}
}

func TestQueueDepthAndIdle(t *testing.T) {
	q := New()
	require.True(t, q.Idle())
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = q.Send(context.Background(), "x", func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		}, "episodic")
		close(done)
	}()
	require.Eventually(t, func() bool { return q.QueueDepth("episodic") == 1 }, time.Second, time.Millisecond)
	require.False(t, q.Idle())
	close(release)
	<-done
	require.Eventually(t, q.Idle, time.Second, time.Millisecond)
}
