package circuit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold:       3,
		RecoveryTimeoutSeconds: 0.5,
		HalfOpenRequests:       2,
	}
}

func TestTripsAndRecovers(t *testing.T) {
	b := New("svc", testConfig())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, Open, b.State())

	ok, reason := b.CanExecute()
	assert.False(t, ok)
	assert.Contains(t, reason, "Circuit open")

	time.Sleep(600 * time.Millisecond)
	ok, _ = b.CanExecute()
	assert.True(t, ok)
	assert.Equal(t, HalfOpen, b.State())

	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
}

func TestReopensOnProbeFailure(t *testing.T) {
	b := New("svc", testConfig())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(600 * time.Millisecond)
	b.CanExecute() // transitions to half-open

	b.RecordFailure()
	assert.Equal(t, Open, b.State())

	ok, _ := b.CanExecute()
	assert.False(t, ok)
}

func TestHalfOpenAdmitsAtMostProbeCount(t *testing.T) {
	b := New("svc", testConfig())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(600 * time.Millisecond)

	admitted := 0
	for i := 0; i < 5; i++ {
		ok, _ := b.CanExecute()
		if ok {
			admitted++
		}
	}
	assert.Equal(t, 2, admitted)
}

func TestResetReturnsClosedZeroed(t *testing.T) {
	b := New("svc", testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, Open, b.State())

	b.Reset()
	assert.Equal(t, Closed, b.State())
	status := b.GetStatus()
	assert.Equal(t, int64(0), status.Stats.ConsecutiveFailures)
}

func TestRegistryGetOrCreateIdempotent(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("svc", testConfig())
	b := r.GetOrCreate("svc", Config{FailureThreshold: 99})
	assert.Same(t, a, b)
	assert.Equal(t, 3, a.GetStatus().Config.FailureThreshold)
}

func TestRegistryResetAll(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("a", testConfig())
	for i := 0; i < 3; i++ {
		a.RecordFailure()
	}
	require.Equal(t, Open, a.State())

	r.ResetAll()
	assert.Equal(t, Closed, a.State())
}

func TestExecutorFallback(t *testing.T) {
	b := New("svc", testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, Open, b.State())

	called := false
	ex := Executor{
		Primary:  func() error { return nil },
		Fallback: func() error { called = true; return nil },
	}
	err := ex.Run(b)
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestExecutorNoFallbackReturnsOpenError(t *testing.T) {
	b := New("svc", testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	ex := Executor{Primary: func() error { return nil }}
	err := ex.Run(b)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrOpen))
}

func TestConcurrentRecordAndCheck(t *testing.T) {
	b := New("svc", testConfig())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				b.RecordSuccess()
			} else {
				b.RecordFailure()
			}
			b.CanExecute()
		}(i)
	}
	wg.Wait()
}
