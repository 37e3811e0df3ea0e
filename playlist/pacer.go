package playlist

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// pacer spaces playlist inserts: a fixed interval between inserts and a
// longer pause after every Nth one.
type pacer struct {
	limiter *rate.Limiter
	every   int
	pause   time.Duration
	count   int
	sleep   func(ctx context.Context, d time.Duration) error
}

func newPacer(cfg Config, sleep func(context.Context, time.Duration) error) *pacer {
	p := &pacer{every: cfg.LongPauseEvery, pause: cfg.LongPause, sleep: sleep}
	if cfg.InsertInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(cfg.InsertInterval), 1)
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// Wait blocks until the next insert may start.
func (p *pacer) Wait(ctx context.Context) error {
	if p.count > 0 && p.every > 0 && p.pause > 0 && p.count%p.every == 0 {
		if err := p.sleep(ctx, p.pause); err != nil {
			return err
		}
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Done records an insert attempt.
func (p *pacer) Done() {
	p.count++
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
