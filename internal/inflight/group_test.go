package inflight

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SingleCaller(t *testing.T) {
	g := New[int](time.Minute)

	v, err, shared := g.Do("k", func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.False(t, shared)
}

func TestDo_ConcurrentCallersShareOneCall(t *testing.T) {
	g := New[string](time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err, _ := g.Do("alice", func() (string, error) {
				calls.Add(1)
				<-release
				return "row-1", nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give the goroutines a moment to pile up behind the leader.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "row-1", r)
	}
}

func TestDo_FailureIsShared(t *testing.T) {
	g := New[int](time.Minute)
	boom := errors.New("boom")

	_, err, _ := g.Do("k", func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	// Within the grace window the failure is replayed, fn is not called.
	called := false
	_, err, shared := g.Do("k", func() (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, shared)
	assert.False(t, called)
}

func TestDo_GraceWindowExpires(t *testing.T) {
	g := New[int](20 * time.Millisecond)

	_, _, _ = g.Do("k", func() (int, error) { return 1, nil })
	assert.Equal(t, 1, g.Len())

	require.Eventually(t, func() bool { return g.Len() == 0 },
		time.Second, 5*time.Millisecond)

	v, err, shared := g.Do("k", func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.False(t, shared)
}

func TestDo_ZeroGraceKeepsNothing(t *testing.T) {
	g := New[int](0)

	_, _, _ = g.Do("k", func() (int, error) { return 1, nil })
	assert.Equal(t, 0, g.Len())

	v, _, _ := g.Do("k", func() (int, error) { return 2, nil })
	assert.Equal(t, 2, v)
}

func TestDo_DistinctKeysIndependent(t *testing.T) {
	g := New[string](time.Minute)

	a, _, _ := g.Do("a", func() (string, error) { return "A", nil })
	b, _, _ := g.Do("b", func() (string, error) { return "B", nil })

	assert.Equal(t, "A", a)
	assert.Equal(t, "B", b)
	assert.Equal(t, 2, g.Len())
}

func TestForget(t *testing.T) {
	g := New[int](time.Minute)

	_, _, _ = g.Do("k", func() (int, error) { return 1, nil })
	g.Forget("k")

	v, _, shared := g.Do("k", func() (int, error) { return 2, nil })
	assert.Equal(t, 2, v)
	assert.False(t, shared)
}

func TestForget_StaleTimerKeepsNewerOutcome(t *testing.T) {
	g := New[int](100 * time.Millisecond)

	_, _, _ = g.Do("k", func() (int, error) { return 1, nil })
	g.Forget("k")

	// Settle a fresh outcome shortly before the first timer fires.
	time.Sleep(70 * time.Millisecond)
	_, _, _ = g.Do("k", func() (int, error) { return 2, nil })

	// The first timer has fired by now; the second outcome must survive it.
	time.Sleep(45 * time.Millisecond)
	v, _, shared := g.Do("k", func() (int, error) { return 3, nil })
	assert.Equal(t, 2, v)
	assert.True(t, shared)
}

func TestForget_DuringCallDropsItsOutcome(t *testing.T) {
	g := New[int](time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan int)
	go func() {
		v, _, _ := g.Do("k", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- v
	}()

	<-started
	g.Forget("k")
	close(release)
	assert.Equal(t, 1, <-done, "the running call still answers its own caller")

	v, _, shared := g.Do("k", func() (int, error) { return 2, nil })
	assert.Equal(t, 2, v)
	assert.False(t, shared)
	assert.Equal(t, 1, g.Len())
}
