package breaker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OnTripFiresOnceOnConsecutiveFailures(t *testing.T) {
	trips := 0
	b := New("test-venue", func() { trips++ })

	failing := func() (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := b.Execute(failing)
		assert.Error(t, err)
	}

	assert.Equal(t, 1, trips)
	assert.Equal(t, "open", b.State())

	// Further calls while already open are rejected by gobreaker itself
	// and must not re-fire onTrip.
	_, err := b.Execute(failing)
	assert.Error(t, err)
	assert.Equal(t, 1, trips)
}

func TestBreaker_NilOnTripIsSafe(t *testing.T) {
	b := New("test-venue-2", nil)
	_, err := b.Execute(func() (any, error) { return "ok", nil })
	assert.NoError(t, err)
	assert.Equal(t, "closed", b.State())
}
