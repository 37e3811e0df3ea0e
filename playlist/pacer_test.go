package playlist

import (
	"context"
	"testing"
	"time"
)

func TestPacerLongPause(t *testing.T) {
	var pauses []time.Duration
	p := newPacer(Config{LongPauseEvery: 3, LongPause: time.Second}, func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	})

	for i := 0; i < 7; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		p.Done()
	}
	if len(pauses) != 2 {
		t.Errorf("pauses = %v, want two (before the 4th and 7th insert)", pauses)
	}
}

func TestPacerInterval(t *testing.T) {
	p := newPacer(Config{InsertInterval: 20 * time.Millisecond}, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		p.Done()
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("three waits took %v, want at least two intervals", elapsed)
	}
}

func TestPacerCanceled(t *testing.T) {
	p := newPacer(Config{LongPauseEvery: 1, LongPause: time.Hour}, nil)
	p.Done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Error("Wait() on a canceled context returned nil")
	}
}
