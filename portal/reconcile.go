package portal

import (
	"context"
	"net/http"
	"net/url"
	"sort"

	"github.com/kat-co/vala"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

// Field is an editable field of an Entry.
type Field string

const (
	FieldStatus Field = "status"
	FieldNotes  Field = "notes"
)

// Entry is the editable attendance of one student.
type Entry struct {
	Status school.AttendanceStatus
	Notes  string
}

// AttendanceMap holds one Entry per student internal ID, for a single (class, date).
// It is never mutated in place: Apply returns a new map.
type AttendanceMap map[string]Entry

// BuildAttendanceView merges the roster with the persisted records of the day.
// Every roster student starts as present; a persisted record overrides that default;
// records of students outside the roster are dropped.
func BuildAttendanceView(roster []school.Student, records []school.AttendanceRecord) AttendanceMap {
	return overlayRecords(defaultEntries(roster), records)
}

func defaultEntries(roster []school.Student) AttendanceMap {
	m := make(AttendanceMap, len(roster))
	for _, std := range roster {
		m[std.ID] = Entry{Status: school.StatusPresent}
	}
	return m
}

// overlayRecords returns a copy of defaults where each entry with a persisted record takes its status & notes.
// When a student has several records, the latest MarkedAt wins and ties go to the greatest ID,
// so the result does not depend on the order of records.
func overlayRecords(defaults AttendanceMap, records []school.AttendanceRecord) AttendanceMap {
	winners := make(map[string]school.AttendanceRecord, len(records))
	for _, rec := range records {
		if _, ok := defaults[rec.StudentID]; !ok {
			continue
		}
		if cur, ok := winners[rec.StudentID]; ok && !supersedes(rec, cur) {
			continue
		}
		winners[rec.StudentID] = rec
	}

	m := defaults.clone()
	for id, rec := range winners {
		m[id] = Entry{Status: rec.Status, Notes: rec.Notes}
	}
	return m
}

func supersedes(a, b school.AttendanceRecord) bool {
	if !a.MarkedAt.Equal(b.MarkedAt) {
		return a.MarkedAt.After(b.MarkedAt)
	}
	return a.ID > b.ID
}

func (m AttendanceMap) clone() AttendanceMap {
	c := make(AttendanceMap, len(m))
	for id, e := range m {
		c[id] = e
	}
	return c
}

// Apply returns a copy of m with field of studentID set to value.
func (m AttendanceMap) Apply(studentID string, field Field, value string) (AttendanceMap, error) {
	entry, ok := m[studentID]
	if !ok {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "unknown student " + studentID})
	}

	switch field {
	case FieldStatus:
		status := school.AttendanceStatus(value)
		if !status.Valid() {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "status must be one of: " + school.StatusChoices(", ")})
		}
		entry.Status = status
	case FieldNotes:
		entry.Notes = value
	default:
		return nil, core.NewValidationError(nil, core.FieldError{Field: "field", Error: "unknown field " + string(field)})
	}

	c := m.clone()
	c[studentID] = entry
	return c, nil
}

// Entries serializes m, ordered by student ID.
func (m AttendanceMap) Entries() []school.AttendanceEntry {
	entries := make([]school.AttendanceEntry, 0, len(m))
	for id, e := range m {
		entries = append(entries, school.AttendanceEntry{StudentID: id, Status: e.Status, Notes: e.Notes})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StudentID < entries[j].StudentID })
	return entries
}

// Reconciler builds the editable attendance of a class on a given day.
type Reconciler struct {
	req Requester
}

func NewReconciler(req Requester) *Reconciler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(req, "req"),
	).CheckAndPanic()

	return &Reconciler{req: req}
}

// Records fetches the persisted records of classID on date.
func (r *Reconciler) Records(ctx context.Context, ts TeacherSession, classID, date string) ([]school.AttendanceRecord, error) {
	classID = core.CleanString(classID)
	if classID == "" {
		return nil, requiredField("class_id")
	}
	if !core.IsDate(date) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "must be a valid date (YYYY-MM-DD)"})
	}

	records := make([]school.AttendanceRecord, 0)
	path := "/api/attendance/" + url.PathEscape(classID) + "?" + url.Values{"date": {date}}.Encode()
	if err := r.req.Do(ctx, http.MethodGet, path, ts.Token, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Reconciler) Build(ctx context.Context, ts TeacherSession, classID, date string, roster []school.Student) (AttendanceMap, error) {
	records, err := r.Records(ctx, ts, classID, date)
	if err != nil {
		return nil, err
	}
	return BuildAttendanceView(roster, records), nil
}
