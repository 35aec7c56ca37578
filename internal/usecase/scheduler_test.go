package usecase

import (
	"context"
	"testing"
	"time"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/logging"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (m *manualDriver) Start(ctx context.Context, job func(time.Time)) error {
	m.job = job
	return nil
}

func (m *manualDriver) Stop(ctx context.Context) error {
	m.stopped = true
	return nil
}

func TestSchedulerRunsCycleOnTrigger(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.source.byRegion["US"] = []domain.CatalogItem{track("A")}

	driver := &manualDriver{}
	var results []domain.CycleResult
	sched := NewScheduler(driver, h.pipeline, logging.Discard(), func(r domain.CycleResult) {
		results = append(results, r)
	})

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if driver.job == nil {
		t.Fatalf("job was not registered")
	}

	driver.job(time.Now())
	driver.job(time.Now())

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Status != domain.CycleSuccess {
		t.Fatalf("first cycle: %s (%v)", results[0].Status, results[0].Err)
	}
	if results[1].Status != domain.CycleNoCandidates {
		t.Fatalf("second cycle lands on an empty bucket, got %s", results[1].Status)
	}

	if err := sched.Stop(context.Background()); err != nil || !driver.stopped {
		t.Fatalf("Stop: err=%v stopped=%v", err, driver.stopped)
	}
}

func TestSchedulerWithoutDriverIsNoop(t *testing.T) {
	t.Parallel()

	sched := NewScheduler(nil, nil, nil, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
}
