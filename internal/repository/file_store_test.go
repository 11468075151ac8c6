package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/models"
)

func testRun() models.RunInfo {
	return models.RunInfo{ID: "11111111-2222-3333-4444-555555555555"}
}

func testSnapshot() *models.Snapshot {
	snap := models.NewSnapshot()
	snap.Summary["grades"] = json.RawMessage(`{"available_courses":[{"code":"CS101"}]}`)
	snap.DetailedGrades["CS101"] = json.RawMessage(`{"detailed_grades":[{"quiz":1}],"midterm_results":[]}`)
	snap.DetailedAttendance["CS101"] = json.RawMessage(`{"detailed_attendance":[{"week":1}]}`)
	snap.DetailedTranscripts["2023/2024"] = json.RawMessage(`{"gpa":3.2,"transcript_data":[]}`)
	return snap
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previous_data.json")
	store := NewFileStore(path, zerolog.Nop())
	ctx := context.Background()

	snap := testSnapshot()
	if err := store.Save(ctx, testRun(), snap); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a baseline after save")
	}

	if !reflect.DeepEqual(normalize(t, snap), normalize(t, loaded)) {
		t.Errorf("round-tripped snapshot differs:\nsaved:  %+v\nloaded: %+v", snap, loaded)
	}
}

// normalize strips formatting differences the JSON round trip may introduce.
func normalize(t *testing.T, snap *models.Snapshot) map[string]interface{} {
	t.Helper()

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var v map[string]interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	return v
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.json"), zerolog.Nop())

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("missing file must not be an error, got %v", err)
	}
	if snap != nil {
		t.Error("expected absent baseline for a missing file")
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previous_data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewFileStore(path, zerolog.Nop())

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("corrupt file must degrade, not fail, got %v", err)
	}
	if snap != nil {
		t.Error("expected absent baseline for a corrupt file")
	}
}

func TestFileStoreSaveIsHumanReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previous_data.json")
	store := NewFileStore(path, zerolog.Nop())

	if err := store.Save(context.Background(), testRun(), testSnapshot()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Error("expected valid JSON on disk")
	}
	if len(data) == 0 || data[0] != '{' {
		t.Error("expected an indented JSON object")
	}
}

func TestFileStoreSaveOverwritesBaseline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previous_data.json")
	store := NewFileStore(path, zerolog.Nop())
	ctx := context.Background()

	if err := store.Save(ctx, testRun(), testSnapshot()); err != nil {
		t.Fatal(err)
	}

	next := models.NewSnapshot()
	next.DetailedGrades["MATH201"] = json.RawMessage(`{"detailed_grades":[]}`)
	if err := store.Save(ctx, testRun(), next); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := loaded.DetailedGrades["CS101"]; ok {
		t.Error("expected the old baseline to be replaced")
	}
	if _, ok := loaded.DetailedGrades["MATH201"]; !ok {
		t.Error("expected the new baseline on disk")
	}
}
