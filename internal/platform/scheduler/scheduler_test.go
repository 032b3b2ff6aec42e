package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestAddRejectsBadSpec(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := New(time.UTC, log)
	if err := s.Add("sweep", "not a cron", func(context.Context) {}); err == nil {
		t.Fatal("Add accepted an invalid spec")
	}
	if err := s.Add("sweep", "0 2 * * *", func(context.Context) {}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestRunsAndStops(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := New(time.UTC, log)
	ran := make(chan struct{}, 1)
	if err := s.Add("tick", "@every 10ms", func(ctx context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Start()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNextUsesLocation(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	log, _ := test.NewNullLogger()
	s := New(paris, log)
	if err := s.Add("sweep", "0 2 * * *", func(context.Context) {}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Start()
	defer s.Stop(context.Background())

	next := s.Next()
	if len(next) != 1 {
		t.Fatalf("Next = %v", next)
	}
	if got := next[0].In(paris); got.Hour() != 2 || got.Minute() != 0 {
		t.Errorf("next run = %v, want 02:00 Paris time", got)
	}
}
