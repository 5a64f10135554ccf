package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestStore_AllowBurstThenBlock(t *testing.T) {
	s := NewStore(rate.Every(time.Hour), 2, time.Minute)
	assert.True(t, s.Allow("k"))
	assert.True(t, s.Allow("k"))
	assert.False(t, s.Allow("k"))
	// 不同 key 互不影响
	assert.True(t, s.Allow("other"))
	assert.Equal(t, 2, s.Len())

	s.Forget("k")
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Allow("k"))
}

func TestStore_Cleanup(t *testing.T) {
	s := NewStore(rate.Inf, 1, time.Nanosecond)
	s.Allow("a")
	time.Sleep(time.Millisecond)
	s.cleanup()
	assert.Equal(t, 0, s.Len())
}

func TestBreakers_TripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreakers(Rule{TripConsecutiveFailures: 3, Timeout: time.Minute})
	cb := b.Get("redis.get")
	assert.Same(t, cb, b.Get("redis.get"))

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}
	_, err := cb.Execute(func() (any, error) { return "ok", nil })
	assert.True(t, IsOpen(err))
}
