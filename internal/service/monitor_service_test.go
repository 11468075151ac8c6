package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/detector"
	"github.com/karimadel/giu-portal-monitor/internal/models"
	"github.com/karimadel/giu-portal-monitor/internal/notifier"
	"github.com/karimadel/giu-portal-monitor/internal/portal"
	"github.com/karimadel/giu-portal-monitor/internal/repository"
)

type stubAssembler struct {
	snapshot *models.Snapshot
	err      error
	panics   bool
}

func (a *stubAssembler) Assemble(ctx context.Context) (*models.Snapshot, error) {
	if a.panics {
		panic("assembler exploded")
	}
	return a.snapshot, a.err
}

type captureNotifier struct {
	calls   int
	lastRun models.RunInfo
	changes []models.ChangeEvent
}

func (n *captureNotifier) Notify(ctx context.Context, run models.RunInfo, changes []models.ChangeEvent) error {
	n.calls++
	n.lastRun = run
	n.changes = changes
	return nil
}

func newTestMonitor(t *testing.T, asm SnapshotAssembler) (MonitorService, *captureNotifier, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "previous_data.json")
	store := repository.NewFileStore(path, zerolog.Nop())
	capture := &captureNotifier{}

	monitor := NewMonitorService(
		asm,
		detector.New(zerolog.Nop()),
		store,
		[]notifier.Notifier{capture},
		zerolog.Nop(),
	)

	return monitor, capture, path
}

func assembledSnapshot() *models.Snapshot {
	snap := models.NewSnapshot()
	snap.DetailedGrades["CS101"] = json.RawMessage(`{"detailed_grades":[{"q":1}],"midterm_results":[]}`)
	return snap
}

func TestRunOnceFirstRun(t *testing.T) {
	monitor, capture, path := newTestMonitor(t, &stubAssembler{snapshot: assembledSnapshot()})

	if err := monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capture.calls != 1 {
		t.Fatalf("expected one notification, got %d", capture.calls)
	}
	if len(capture.changes) != 1 || capture.changes[0].Type != models.ChangeInitialFetch {
		t.Errorf("expected a single initial_fetch event, got %+v", capture.changes)
	}
	if capture.lastRun.ID == "" {
		t.Error("expected a run ID on the notification")
	}

	if _, err := os.Stat(path); err != nil {
		t.Error("expected the snapshot persisted as the new baseline")
	}

	status := monitor.Status()
	if status.TotalRuns != 1 || status.Running {
		t.Errorf("unexpected status after run: %+v", status)
	}
	if status.LastChanges[models.CategoryOther] != 1 {
		t.Errorf("expected the initial event counted under other, got %+v", status.LastChanges)
	}
}

func TestRunOnceNoChanges(t *testing.T) {
	monitor, capture, _ := newTestMonitor(t, &stubAssembler{snapshot: assembledSnapshot()})
	ctx := context.Background()

	if err := monitor.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if err := monitor.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	// First run notified once; the identical second run must stay silent.
	if capture.calls != 1 {
		t.Errorf("expected no second notification, got %d calls", capture.calls)
	}
	if got := monitor.LastChanges(); len(got) != 0 {
		t.Errorf("expected no changes recorded for the second run, got %+v", got)
	}
}

func TestRunOnceDetectsChangesAgainstBaseline(t *testing.T) {
	asm := &stubAssembler{snapshot: assembledSnapshot()}
	monitor, capture, _ := newTestMonitor(t, asm)
	ctx := context.Background()

	if err := monitor.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	grown := models.NewSnapshot()
	grown.DetailedGrades["CS101"] = json.RawMessage(`{"detailed_grades":[{"q":1},{"q":2}],"midterm_results":[]}`)
	asm.snapshot = grown

	if err := monitor.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	if capture.calls != 2 {
		t.Fatalf("expected a second notification, got %d calls", capture.calls)
	}
	if len(capture.changes) != 1 || capture.changes[0].Type != models.ChangeNewGradeEntries {
		t.Errorf("expected one new_grade_entries event, got %+v", capture.changes)
	}
}

func TestRunOnceDiscoveryFailure(t *testing.T) {
	monitor, capture, path := newTestMonitor(t, &stubAssembler{err: portal.ErrNoCourses})

	err := monitor.RunOnce(context.Background())
	if !errors.Is(err, portal.ErrNoCourses) {
		t.Fatalf("expected ErrNoCourses, got %v", err)
	}

	// Discovery failure is logged, not notified, and nothing is persisted.
	if capture.calls != 0 {
		t.Errorf("expected no notification for a discovery failure, got %d", capture.calls)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no baseline persisted after a discovery failure")
	}
}

func TestRunOnceUnexpectedErrorNotifies(t *testing.T) {
	monitor, capture, _ := newTestMonitor(t, &stubAssembler{err: errors.New("portal melted")})

	if err := monitor.RunOnce(context.Background()); err == nil {
		t.Fatal("expected an error")
	}

	if capture.calls != 1 {
		t.Fatalf("expected a monitoring-error notification, got %d calls", capture.calls)
	}
	if len(capture.changes) != 1 || capture.changes[0].Type != models.ChangeMonitorError {
		t.Errorf("expected a single monitor_error event, got %+v", capture.changes)
	}
	if capture.changes[0].Category != models.CategoryOther {
		t.Errorf("expected category other, got %s", capture.changes[0].Category)
	}

	status := monitor.Status()
	if status.LastError == "" {
		t.Error("expected the error recorded in status")
	}
}

func TestRunOncePanicBecomesMonitorError(t *testing.T) {
	monitor, capture, _ := newTestMonitor(t, &stubAssembler{panics: true})

	if err := monitor.RunOnce(context.Background()); err == nil {
		t.Fatal("expected the panic converted into an error")
	}

	if capture.calls != 1 || capture.changes[0].Type != models.ChangeMonitorError {
		t.Errorf("expected a monitor_error notification, got %+v", capture.changes)
	}
	if monitor.Running() {
		t.Error("expected the run flag cleared after a panic")
	}
}
