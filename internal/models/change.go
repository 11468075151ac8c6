package models

import "fmt"

type ChangeCategory string

const (
	CategoryGrades     ChangeCategory = "grades"
	CategoryAttendance ChangeCategory = "attendance"
	CategoryTranscript ChangeCategory = "transcript"
	CategoryOther      ChangeCategory = "other"
)

type ChangeType string

const (
	ChangeInitialFetch          ChangeType = "initial_fetch"
	ChangeSummaryUpdated        ChangeType = "summary_updated"
	ChangeNewGradeEntries       ChangeType = "new_grade_entries"
	ChangeNewMidtermResults     ChangeType = "new_midterm_results"
	ChangeGradesChanged         ChangeType = "grade_changes"
	ChangeNewAttendanceEntries  ChangeType = "new_attendance_entries"
	ChangeNewAttendanceWarnings ChangeType = "new_attendance_warnings"
	ChangeGPAUpdated            ChangeType = "gpa_changed"
	ChangeNewTranscriptCourses  ChangeType = "new_transcript_courses"
	ChangeMonitorError          ChangeType = "monitor_error"
)

// ChangeEvent is one detected semantic difference between the baseline and
// the current snapshot. The category is assigned at detection time; the
// notification layer only groups, it never inspects rendered text.
type ChangeEvent struct {
	Type     ChangeType     `json:"type"`
	Category ChangeCategory `json:"category"`
	Endpoint string         `json:"endpoint,omitempty"`
	Course   string         `json:"course,omitempty"`
	Year     string         `json:"year,omitempty"`
	Count    int            `json:"count,omitempty"`
	OldValue string         `json:"old_value,omitempty"`
	NewValue string         `json:"new_value,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Render produces the legacy human-readable line used in notifications.
func (e ChangeEvent) Render() string {
	switch e.Type {
	case ChangeInitialFetch:
		return "Initial data fetch - monitoring started"
	case ChangeSummaryUpdated:
		return fmt.Sprintf("%s summary updated", title(e.Endpoint))
	case ChangeNewGradeEntries:
		return fmt.Sprintf("%d new grade entries for %s", e.Count, e.Course)
	case ChangeNewMidtermResults:
		return fmt.Sprintf("New midterm results for %s", e.Course)
	case ChangeGradesChanged:
		return fmt.Sprintf("Grade changes detected for %s", e.Course)
	case ChangeNewAttendanceEntries:
		return fmt.Sprintf("%d new attendance entries for %s", e.Count, e.Course)
	case ChangeNewAttendanceWarnings:
		return fmt.Sprintf("New attendance warnings for %s", e.Course)
	case ChangeGPAUpdated:
		return fmt.Sprintf("GPA updated for %s: %s → %s", e.Year, e.OldValue, e.NewValue)
	case ChangeNewTranscriptCourses:
		return fmt.Sprintf("%d new courses in %s transcript", e.Count, e.Year)
	case ChangeMonitorError:
		return fmt.Sprintf("Monitoring error: %s", e.Message)
	default:
		if e.Message != "" {
			return e.Message
		}
		return string(e.Type)
	}
}

// GroupByCategory splits events into the four notification buckets while
// preserving their detection order inside each bucket.
func GroupByCategory(events []ChangeEvent) map[ChangeCategory][]ChangeEvent {
	groups := make(map[ChangeCategory][]ChangeEvent)
	for _, e := range events {
		cat := e.Category
		switch cat {
		case CategoryGrades, CategoryAttendance, CategoryTranscript:
		default:
			cat = CategoryOther
		}
		groups[cat] = append(groups[cat], e)
	}
	return groups
}

func title(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
