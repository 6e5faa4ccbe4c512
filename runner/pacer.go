package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type PacerOptions struct {
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration
	// MaxRPS throttles every request when positive.
	MaxRPS float64
	// OnPause is called before the batch sleeps.
	OnPause func(time.Duration)
}

// Pacer keeps a download batch under the upstream rate limit. It counts items
// processed since the window started; once Threshold items went through
// before Window elapsed, the next Wait blocks until Cooldown has passed since
// the window start and then opens a new window.
type Pacer struct {
	threshold int
	window    time.Duration
	cooldown  time.Duration
	limiter   *rate.Limiter
	onPause   func(time.Duration)

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	start time.Time
	count int
}

func NewPacer(opts PacerOptions) *Pacer {
	p := &Pacer{
		threshold: opts.Threshold,
		window:    opts.Window,
		cooldown:  opts.Cooldown,
		onPause:   opts.OnPause,
		now:       time.Now,
		sleep:     sleepContext,
	}
	if opts.MaxRPS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}
	return p
}

// Wait must be called before each item.
func (p *Pacer) Wait(ctx context.Context) error {
	now := p.now()
	if p.start.IsZero() {
		p.start = now
	}

	elapsed := now.Sub(p.start)
	switch {
	case elapsed >= p.window:
		p.reset(now)
	case p.threshold > 0 && p.count >= p.threshold:
		if pause := p.cooldown - elapsed; pause > 0 {
			if p.onPause != nil {
				p.onPause(pause)
			}
			if err := p.sleep(ctx, pause); err != nil {
				return err
			}
		}
		p.reset(p.now())
	}

	if p.limiter != nil {
		return p.limiter.Wait(ctx)
	}
	return nil
}

// Done records one processed item in the current window.
func (p *Pacer) Done() {
	p.count++
}

func (p *Pacer) reset(now time.Time) {
	p.start = now
	p.count = 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
