package models

import "encoding/json"

// Snapshot is a complete structured capture of the portal state at one point
// in time. It is assembled wholesale and never mutated afterwards; the JSON
// tags match the on-disk baseline format.
type Snapshot struct {
	Summary             map[string]json.RawMessage `json:"summary"`
	DetailedGrades      map[string]json.RawMessage `json:"detailed_grades"`
	DetailedAttendance  map[string]json.RawMessage `json:"detailed_attendance"`
	DetailedTranscripts map[string]json.RawMessage `json:"detailed_transcripts"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Summary:             make(map[string]json.RawMessage),
		DetailedGrades:      make(map[string]json.RawMessage),
		DetailedAttendance:  make(map[string]json.RawMessage),
		DetailedTranscripts: make(map[string]json.RawMessage),
	}
}

// YearDescriptor is one entry of the transcript summary's available_years:
// a display text plus the opaque value the API expects back.
type YearDescriptor struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}
