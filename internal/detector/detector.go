// Package detector compares two portal snapshots and emits typed change
// events. Records are compared by content hash first; only records whose
// hashes differ are inspected field by field.
package detector

import (
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/jsonhash"
	"github.com/karimadel/giu-portal-monitor/internal/models"
	"github.com/karimadel/giu-portal-monitor/internal/portal"
)

type Detector struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Detector {
	return &Detector{logger: logger}
}

// Detect returns the changes between baseline and current, in a fixed order:
// summary events, then grade events, then attendance events, then transcript
// events. A nil baseline is the first run and yields exactly one event.
func (d *Detector) Detect(baseline, current *models.Snapshot) []models.ChangeEvent {
	if baseline == nil {
		return []models.ChangeEvent{{
			Type:     models.ChangeInitialFetch,
			Category: models.CategoryOther,
		}}
	}

	var changes []models.ChangeEvent
	changes = append(changes, d.summaryChanges(baseline, current)...)
	changes = append(changes, d.gradeChanges(baseline, current)...)
	changes = append(changes, d.attendanceChanges(baseline, current)...)
	changes = append(changes, d.transcriptChanges(baseline, current)...)

	d.logger.Debug().Int("changes", len(changes)).Msg("Change detection completed")

	return changes
}

var summaryCategories = map[string]models.ChangeCategory{
	portal.EndpointGrades:     models.CategoryGrades,
	portal.EndpointAttendance: models.CategoryAttendance,
	portal.EndpointTranscript: models.CategoryTranscript,
}

func (d *Detector) summaryChanges(baseline, current *models.Snapshot) []models.ChangeEvent {
	var changes []models.ChangeEvent

	for _, endpoint := range portal.SummaryEndpoints {
		if jsonhash.Equal(baseline.Summary[endpoint], current.Summary[endpoint]) {
			continue
		}
		changes = append(changes, models.ChangeEvent{
			Type:     models.ChangeSummaryUpdated,
			Category: summaryCategories[endpoint],
			Endpoint: endpoint,
		})
	}

	return changes
}

type gradeRecord struct {
	Entries  []json.RawMessage `json:"detailed_grades"`
	Midterms json.RawMessage   `json:"midterm_results"`
}

func (r gradeRecord) midtermCount() int {
	var list []json.RawMessage
	json.Unmarshal(r.Midterms, &list)
	return len(list)
}

// gradeChanges inspects every course of the current snapshot. Courses present
// only in the baseline are not reported. Same-count edits inside the entry
// list surface only through the midterm hash check, matching the portal's
// established notification behavior.
func (d *Detector) gradeChanges(baseline, current *models.Snapshot) []models.ChangeEvent {
	var changes []models.ChangeEvent

	for _, course := range sortedKeys(current.DetailedGrades) {
		newRaw := current.DetailedGrades[course]
		oldRaw := baseline.DetailedGrades[course]
		if jsonhash.Equal(oldRaw, newRaw) {
			continue
		}

		var oldRec, newRec gradeRecord
		json.Unmarshal(oldRaw, &oldRec)
		json.Unmarshal(newRaw, &newRec)

		if delta := len(newRec.Entries) - len(oldRec.Entries); delta > 0 {
			changes = append(changes, models.ChangeEvent{
				Type:     models.ChangeNewGradeEntries,
				Category: models.CategoryGrades,
				Course:   course,
				Count:    delta,
			})
		}

		if newRec.midtermCount() > oldRec.midtermCount() {
			changes = append(changes, models.ChangeEvent{
				Type:     models.ChangeNewMidtermResults,
				Category: models.CategoryGrades,
				Course:   course,
			})
		}

		if !jsonhash.Equal(orEmptyList(oldRec.Midterms), orEmptyList(newRec.Midterms)) {
			changes = append(changes, models.ChangeEvent{
				Type:     models.ChangeGradesChanged,
				Category: models.CategoryGrades,
				Course:   course,
			})
		}
	}

	return changes
}

type attendanceRecord struct {
	Entries  []json.RawMessage `json:"detailed_attendance"`
	Warnings []json.RawMessage `json:"warning_courses"`
}

func (d *Detector) attendanceChanges(baseline, current *models.Snapshot) []models.ChangeEvent {
	var changes []models.ChangeEvent

	for _, course := range sortedKeys(current.DetailedAttendance) {
		newRaw := current.DetailedAttendance[course]
		oldRaw := baseline.DetailedAttendance[course]
		if jsonhash.Equal(oldRaw, newRaw) {
			continue
		}

		var oldRec, newRec attendanceRecord
		json.Unmarshal(oldRaw, &oldRec)
		json.Unmarshal(newRaw, &newRec)

		if delta := len(newRec.Entries) - len(oldRec.Entries); delta > 0 {
			changes = append(changes, models.ChangeEvent{
				Type:     models.ChangeNewAttendanceEntries,
				Category: models.CategoryAttendance,
				Course:   course,
				Count:    delta,
			})
		}

		if len(newRec.Warnings) > len(oldRec.Warnings) {
			changes = append(changes, models.ChangeEvent{
				Type:     models.ChangeNewAttendanceWarnings,
				Category: models.CategoryAttendance,
				Course:   course,
			})
		}
	}

	return changes
}

type transcriptRecord struct {
	GPA     json.RawMessage   `json:"gpa"`
	Courses []json.RawMessage `json:"transcript_data"`
}

func (d *Detector) transcriptChanges(baseline, current *models.Snapshot) []models.ChangeEvent {
	var changes []models.ChangeEvent

	for _, year := range sortedKeys(current.DetailedTranscripts) {
		newRaw := current.DetailedTranscripts[year]
		oldRaw := baseline.DetailedTranscripts[year]
		if jsonhash.Equal(oldRaw, newRaw) {
			continue
		}

		var oldRec, newRec transcriptRecord
		json.Unmarshal(oldRaw, &oldRec)
		json.Unmarshal(newRaw, &newRec)

		if !jsonhash.Equal(oldRec.GPA, newRec.GPA) {
			changes = append(changes, models.ChangeEvent{
				Type:     models.ChangeGPAUpdated,
				Category: models.CategoryTranscript,
				Year:     year,
				OldValue: formatValue(oldRec.GPA),
				NewValue: formatValue(newRec.GPA),
			})
		}

		if delta := len(newRec.Courses) - len(oldRec.Courses); delta > 0 {
			changes = append(changes, models.ChangeEvent{
				Type:     models.ChangeNewTranscriptCourses,
				Category: models.CategoryTranscript,
				Year:     year,
				Count:    delta,
			})
		}
	}

	return changes
}

// orEmptyList substitutes an empty array for an absent or null list field, so
// a record gaining or losing the key without gaining content is not an edit.
func orEmptyList(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("[]")
	}
	return raw
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatValue renders a scalar JSON value for event text. Strings lose their
// quotes, numbers keep their original spelling, absent values become "none".
func formatValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "none"
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}
