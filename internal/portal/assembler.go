package portal

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/config"
	"github.com/karimadel/giu-portal-monitor/internal/models"
)

// ErrNoCourses means the discovery step found no course codes at all. The run
// is aborted without detail fetches and nothing is persisted.
var ErrNoCourses = errors.New("no courses discovered in summary data")

// Assembler drives the Client across the discovered courses and years to
// build one complete snapshot. Requests run strictly sequentially with fixed
// delays between them to respect the portal's rate limits.
type Assembler struct {
	client       *Client
	allowedYears []string
	summaryDelay time.Duration
	detailDelay  time.Duration
	logger       zerolog.Logger
	sleep        func(time.Duration)
}

func NewAssembler(client *Client, cfg config.MonitorConfig, logger zerolog.Logger) *Assembler {
	return &Assembler{
		client:       client,
		allowedYears: cfg.AllowedYears,
		summaryDelay: cfg.SummaryDelay,
		detailDelay:  cfg.DetailDelay,
		logger:       logger,
		sleep:        time.Sleep,
	}
}

func (a *Assembler) Assemble(ctx context.Context) (*models.Snapshot, error) {
	snap := models.NewSnapshot()

	a.logger.Info().Msg("Fetching summary data")
	for _, endpoint := range SummaryEndpoints {
		data, err := a.client.Request(ctx, endpoint, nil)
		if err != nil {
			a.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Summary fetch failed, continuing without it")
		} else if !isEmptyPayload(data) {
			snap.Summary[endpoint] = data
		}
		a.sleep(a.summaryDelay)
	}

	courses := extractCourses(snap.Summary)
	if len(courses) == 0 {
		return nil, ErrNoCourses
	}

	years := a.extractYears(snap.Summary[EndpointTranscript])

	a.logger.Info().
		Int("courses", len(courses)).
		Int("years", len(years)).
		Msg("Discovery completed")

	a.logger.Info().Int("courses", len(courses)).Msg("Fetching detailed grades")
	for _, code := range courses {
		if data := a.fetchDetail(ctx, EndpointGrades, map[string]string{"course_code": code}); data != nil {
			snap.DetailedGrades[code] = data
		}
	}

	a.logger.Info().Int("courses", len(courses)).Msg("Fetching detailed attendance")
	for _, code := range courses {
		if data := a.fetchDetail(ctx, EndpointAttendance, map[string]string{"course_code": code}); data != nil {
			snap.DetailedAttendance[code] = data
		}
	}

	a.logger.Info().Int("years", len(years)).Msg("Fetching detailed transcripts")
	for _, year := range years {
		if data := a.fetchDetail(ctx, EndpointTranscript, map[string]string{"year_value": year.Value}); data != nil {
			snap.DetailedTranscripts[year.Text] = data
		}
	}

	return snap, nil
}

// fetchDetail issues one parameterized request and applies the inter-request
// delay. Failures and empty payloads yield nil; the caller just skips the key.
func (a *Assembler) fetchDetail(ctx context.Context, endpoint string, params map[string]string) json.RawMessage {
	data, err := a.client.Request(ctx, endpoint, params)
	a.sleep(a.detailDelay)

	if err != nil {
		a.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Detail fetch failed, skipping")
		return nil
	}
	if isEmptyPayload(data) {
		return nil
	}
	return data
}

type courseSummary struct {
	AvailableCourses []json.RawMessage `json:"available_courses"`
}

type courseEntry struct {
	Code string `json:"code"`
}

// extractCourses unions the course codes of the grades and attendance
// summaries. Entries that are not objects or carry no code are skipped.
func extractCourses(summary map[string]json.RawMessage) []string {
	seen := make(map[string]struct{})

	for _, endpoint := range []string{EndpointGrades, EndpointAttendance} {
		raw, ok := summary[endpoint]
		if !ok {
			continue
		}

		var cs courseSummary
		if err := json.Unmarshal(raw, &cs); err != nil {
			continue
		}

		for _, entry := range cs.AvailableCourses {
			var course courseEntry
			if err := json.Unmarshal(entry, &course); err != nil || course.Code == "" {
				continue
			}
			seen[course.Code] = struct{}{}
		}
	}

	courses := make([]string, 0, len(seen))
	for code := range seen {
		courses = append(courses, code)
	}
	sort.Strings(courses)

	return courses
}

type yearSummary struct {
	AvailableYears []json.RawMessage `json:"available_years"`
}

// extractYears keeps the transcript summary's years whose display text
// mentions one of the allowed year strings.
func (a *Assembler) extractYears(raw json.RawMessage) []models.YearDescriptor {
	if raw == nil {
		return nil
	}

	var ys yearSummary
	if err := json.Unmarshal(raw, &ys); err != nil {
		return nil
	}

	var years []models.YearDescriptor
	for _, entry := range ys.AvailableYears {
		var year models.YearDescriptor
		if err := json.Unmarshal(entry, &year); err != nil {
			continue
		}
		for _, allowed := range a.allowedYears {
			if strings.Contains(year.Text, allowed) {
				years = append(years, year)
				break
			}
		}
	}

	return years
}

func isEmptyPayload(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}
