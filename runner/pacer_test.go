package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestPacer(clock *fakeClock, threshold int, window, cooldown time.Duration) (*Pacer, *[]time.Duration) {
	var notices []time.Duration
	p := NewPacer(PacerOptions{
		Threshold: threshold,
		Window:    window,
		Cooldown:  cooldown,
		OnPause:   func(d time.Duration) { notices = append(notices, d) },
	})
	p.now = clock.Now
	p.sleep = clock.Sleep
	return p, &notices
}

func TestPacerPausesForRemainingCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p, notices := newTestPacer(clock, 3, 10*time.Minute, 10*time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(context.Background()))
		p.Done()
		clock.Advance(time.Minute)
	}
	assert.Empty(t, clock.sleeps)

	// 3 items within 3 minutes of a 10 minute window.
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, []time.Duration{7 * time.Minute}, clock.sleeps)
	assert.Equal(t, []time.Duration{7 * time.Minute}, *notices)
	assert.Equal(t, 0, p.count)
	assert.Equal(t, clock.now, p.start)
}

func TestPacerResetsAfterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p, _ := newTestPacer(clock, 3, 10*time.Minute, 10*time.Minute)

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Wait(context.Background()))
		p.Done()
	}
	clock.Advance(10 * time.Minute)

	require.NoError(t, p.Wait(context.Background()))
	p.Done()
	require.NoError(t, p.Wait(context.Background()))
	p.Done()
	require.NoError(t, p.Wait(context.Background()))

	assert.Empty(t, clock.sleeps)
	assert.Equal(t, 2, p.count)
}

func TestPacerNoPauseWhenCooldownAlreadyPassed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p, notices := newTestPacer(clock, 2, 10*time.Minute, time.Minute)

	require.NoError(t, p.Wait(context.Background()))
	p.Done()
	require.NoError(t, p.Wait(context.Background()))
	p.Done()
	clock.Advance(2 * time.Minute)

	require.NoError(t, p.Wait(context.Background()))
	assert.Empty(t, clock.sleeps)
	assert.Empty(t, *notices)
	assert.Equal(t, 0, p.count)
}

func TestPacerContextCancelled(t *testing.T) {
	p := NewPacer(PacerOptions{Threshold: 1, Window: time.Hour, Cooldown: time.Hour})
	require.NoError(t, p.Wait(context.Background()))
	p.Done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}

func TestPacerLimiter(t *testing.T) {
	p := NewPacer(PacerOptions{Threshold: 100, Window: time.Hour, Cooldown: time.Hour, MaxRPS: 1000})
	require.NotNil(t, p.limiter)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Wait(context.Background()))
		p.Done()
	}
}
