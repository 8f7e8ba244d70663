package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubRunner struct {
	mu     sync.Mutex
	calls  int
	report models.RunReport
	err    error
}

func (r *stubRunner) Run(ctx context.Context) (models.RunReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.report, r.err
}

type stubArchive struct {
	saved []models.RunReport
	err   error
}

func (a *stubArchive) SaveRunReport(ctx context.Context, report models.RunReport) error {
	a.saved = append(a.saved, report)
	return a.err
}

func TestRunNow_ArchivesReport(t *testing.T) {
	runner := &stubRunner{report: models.RunReport{ID: uuid.New(), Payouts: 3}}
	repo := &stubArchive{}
	s := NewScheduler(Config{CronSchedule: "5 0 * * *"}, runner, repo, nil)

	report, err := s.RunNow(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Payouts != 3 {
		t.Errorf("Expected 3 payouts, got %d", report.Payouts)
	}
	if len(repo.saved) != 1 || repo.saved[0].ID != runner.report.ID {
		t.Errorf("Expected report %s archived, got %v", runner.report.ID, repo.saved)
	}
}

func TestRunNow_ArchivesFailedRunsAndLogsArchiveErrors(t *testing.T) {
	runErr := errors.New("plan failed")
	runner := &stubRunner{report: models.RunReport{ID: uuid.New()}, err: runErr}
	repo := &stubArchive{err: errors.New("mongo down")}
	core, logs := observer.New(zap.ErrorLevel)
	s := NewScheduler(Config{CronSchedule: "5 0 * * *"}, runner, repo, zap.New(core))

	_, err := s.RunNow(context.Background())
	if !errors.Is(err, runErr) {
		t.Errorf("Expected run error, got %v", err)
	}
	if len(repo.saved) != 1 {
		t.Errorf("Expected failed run to be archived, got %d", len(repo.saved))
	}
	if logs.FilterMessage("failed to archive run report").Len() != 1 {
		t.Error("Expected archive failure to be logged")
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewScheduler(Config{CronSchedule: "not a schedule"}, &stubRunner{}, nil, nil)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Expected error for invalid schedule")
	}
}

func TestStart_RunsOnSchedule(t *testing.T) {
	runner := &stubRunner{}
	s := NewScheduler(Config{CronSchedule: "@every 1s", RunTimeout: time.Second}, runner, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		runner.mu.Lock()
		calls := runner.calls
		runner.mu.Unlock()
		if calls > 0 {
			s.Stop()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()
	t.Error("Expected the job to run within 3s")
}
