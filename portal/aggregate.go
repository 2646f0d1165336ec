package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/school"
)

// StudentAttendanceSummary is the attendance history of a student with its server-computed statistics.
type StudentAttendanceSummary = school.StudentAttendance

// Order is the chronological order of the records of a StudentAttendanceSummary.
type Order int

const (
	Ascending Order = iota
	Descending
)

// Stats is the payload of the dashboard stats endpoint: exactly one of Teacher or Student is set.
type Stats struct {
	Teacher *school.TeacherStats
	Student *school.StudentStats
}

// IsStudent reports whether the server sent the student shape (the one with `total_days`).
func (s Stats) IsStudent() bool { return s.Student != nil }

func decodeStats(raw json.RawMessage) (Stats, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Stats{}, errors.Wrap(err, "decoding stats")
	}
	if _, ok := fields["total_days"]; ok {
		var st school.StudentStats
		if err := json.Unmarshal(raw, &st); err != nil {
			return Stats{}, errors.Wrap(err, "decoding student stats")
		}
		return Stats{Student: &st}, nil
	}
	var st school.TeacherStats
	if err := json.Unmarshal(raw, &st); err != nil {
		return Stats{}, errors.Wrap(err, "decoding teacher stats")
	}
	return Stats{Teacher: &st}, nil
}

// Aggregator fetches the dashboard counters and the student summary. It computes nothing itself.
type Aggregator struct {
	req Requester
}

func NewAggregator(req Requester) *Aggregator {
	vala.BeginValidation().Validate(
		vala.IsNotNil(req, "req"),
	).CheckAndPanic()

	return &Aggregator{req: req}
}

func (a *Aggregator) LoadStats(ctx context.Context, sess *Session) (Stats, error) {
	if sess == nil {
		return Stats{}, ErrNoSession
	}
	var raw json.RawMessage
	if err := a.req.Do(ctx, http.MethodGet, "/api/dashboard/stats", sess.Token, nil, &raw); err != nil {
		return Stats{}, err
	}
	stats, err := decodeStats(raw)
	if err != nil {
		return Stats{}, &TransportError{Method: http.MethodGet, Path: "/api/dashboard/stats", StatusCode: http.StatusOK, Err: err}
	}
	return stats, nil
}

func (a *Aggregator) LoadTeacherStats(ctx context.Context, ts TeacherSession) (school.TeacherStats, error) {
	var stats school.TeacherStats
	if err := a.req.Do(ctx, http.MethodGet, "/api/dashboard/stats", ts.Token, nil, &stats); err != nil {
		return school.TeacherStats{}, err
	}
	return stats, nil
}

// LoadStudentSummary fetches the summary of the student and sorts its records chronologically.
// Records of the same day keep the server's order.
func (a *Aggregator) LoadStudentSummary(ctx context.Context, ss StudentSession, order Order) (StudentAttendanceSummary, error) {
	var summary StudentAttendanceSummary
	if err := a.req.Do(ctx, http.MethodGet, "/api/student/attendance", ss.Token, nil, &summary); err != nil {
		return StudentAttendanceSummary{}, err
	}
	sortRecords(summary.Records, order)
	return summary, nil
}

func sortRecords(records []school.AttendanceRecord, order Order) {
	sort.SliceStable(records, func(i, j int) bool {
		if order == Descending {
			return records[i].Date > records[j].Date
		}
		return records[i].Date < records[j].Date
	})
}
