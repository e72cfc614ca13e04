package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginExtraction(t *testing.T) {
	assert.Equal(t, "https://example.com", Origin("https://example.com/a/b.bin"))
	assert.Equal(t, "http://example.com:8080", Origin("http://example.com:8080/x"))
}

func TestTripsOpenAfterThreshold(t *testing.T) {
	r := New(5, time.Minute)
	origin := "https://flaky.example"

	for i := 0; i < 4; i++ {
		allowed, probe := r.Allow(origin)
		require.True(t, allowed)
		require.False(t, probe)
		r.RecordFailure(origin)
	}
	assert.Equal(t, Closed, r.State(origin))

	allowed, _ := r.Allow(origin)
	require.True(t, allowed)
	r.RecordFailure(origin)

	assert.Equal(t, Open, r.State(origin))
	allowed, _ = r.Allow(origin)
	assert.False(t, allowed, "origin should be rejected while open")
}

func TestHalfOpenAllowsExactlyOneProbe(t *testing.T) {
	r := New(1, 10*time.Millisecond)
	origin := "https://one-strike.example"

	r.Allow(origin)
	r.RecordFailure(origin)
	assert.Equal(t, Open, r.State(origin))

	time.Sleep(20 * time.Millisecond)

	allowed1, probe1 := r.Allow(origin)
	require.True(t, allowed1)
	require.True(t, probe1)

	allowed2, _ := r.Allow(origin)
	assert.False(t, allowed2, "a second concurrent probe must be rejected")

	r.RecordSuccess(origin)
	assert.Equal(t, Closed, r.State(origin))
}

func TestHalfOpenFailureReopens(t *testing.T) {
	r := New(1, 10*time.Millisecond)
	origin := "https://reopen.example"

	r.Allow(origin)
	r.RecordFailure(origin)
	time.Sleep(20 * time.Millisecond)

	_, probe := r.Allow(origin)
	require.True(t, probe)
	r.RecordFailure(origin)

	assert.Equal(t, Open, r.State(origin))
}
