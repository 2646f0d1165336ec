package school

import (
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
)

// AttendanceStatus is the closed set of statuses a student can be marked with.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
)

// AllStatuses lists the statuses in display order.
var AllStatuses = []AttendanceStatus{StatusPresent, StatusLate, StatusAbsent}

func (s AttendanceStatus) Valid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// StatusChoices joins AllStatuses with sep, e.g. "present|late|absent".
func StatusChoices(sep string) string {
	names := make([]string, 0, len(AllStatuses))
	for _, status := range AllStatuses {
		names = append(names, string(status))
	}
	return strings.Join(names, sep)
}

type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Grade     string    `json:"grade"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Student struct {
	ID            string    `json:"id"`
	Code          string    `json:"student_id"` // display code, e.g. ST001
	Name          string    `json:"name"`
	ClassID       string    `json:"class_id"`
	Email         string    `json:"email"`
	ParentContact string    `json:"parent_contact"`
	CreatedAt     time.Time `json:"created_at"`
}

// AttendanceRecord is the persisted status of one student, in one class, on one day.
// There is at most one record per (ClassID, Date, StudentID).
type AttendanceRecord struct {
	ID          string           `json:"id"`
	ClassID     string           `json:"class_id"`
	Date        string           `json:"date"` // YYYY-MM-DD
	StudentID   string           `json:"student_id"`
	StudentName string           `json:"student_name"`
	Status      AttendanceStatus `json:"status"`
	Notes       string           `json:"notes"`
	MarkedBy    string           `json:"marked_by"`
	MarkedAt    time.Time        `json:"timestamp"` // UTC
}

type AttendanceEntry struct {
	StudentID string           `json:"student_id" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required,attendance_status"`
	Notes     string           `json:"notes"`
}

// MarkAttendance replaces every record of a class on a given day.
type MarkAttendance struct {
	ClassID string            `json:"class_id" validate:"required"`
	Date    string            `json:"date" validate:"required,calendar_date"`
	Entries []AttendanceEntry `json:"attendance_data" validate:"required,min=1,dive"`
}

func (ma *MarkAttendance) Validate(validate *validator.Validate) error {
	ma.ClassID = core.CleanString(ma.ClassID)
	ma.Date = core.CleanString(ma.Date)
	for i := range ma.Entries {
		ma.Entries[i].StudentID = core.CleanString(ma.Entries[i].StudentID)
		ma.Entries[i].Status = AttendanceStatus(core.CleanString(string(ma.Entries[i].Status), true /* lower */))
		ma.Entries[i].Notes = core.CleanString(ma.Entries[i].Notes)
	}
	return validate.Struct(ma)
}

type AttendanceFilter struct {
	ClassID   string
	Date      string
	StudentID string
	Ordering  []core.DBOrdering
}

// TeacherStats are the dashboard counters of a teacher, for "today".
type TeacherStats struct {
	TotalClasses  int `json:"total_classes"`
	TotalStudents int `json:"total_students"`
	PresentToday  int `json:"present_today"`
	AbsentToday   int `json:"absent_today"`
	MarkedToday   int `json:"attendance_marked_today"`
}

// StudentStats are the dashboard counters of a student. `total_days` is always sent: clients use it
// to tell the student shape from the teacher one.
type StudentStats struct {
	TotalDays            int     `json:"total_days"`
	PresentDays          int     `json:"present_days"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

type Statistics struct {
	TotalDays            int     `json:"total_days"`
	PresentDays          int     `json:"present_days"`
	LateDays             int     `json:"late_days"`
	AbsentDays           int     `json:"absent_days"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

type StudentAttendance struct {
	Student    Student            `json:"student"`
	Records    []AttendanceRecord `json:"attendance_records"`
	Statistics Statistics         `json:"statistics"`
}

// StatusCounts is the raw tally backing Statistics.
type StatusCounts struct {
	Total   int `boil:"total"`
	Present int `boil:"present"`
	Late    int `boil:"late"`
	Absent  int `boil:"absent"`
}

func (c StatusCounts) Statistics() Statistics {
	return Statistics{
		TotalDays:            c.Total,
		PresentDays:          c.Present,
		LateDays:             c.Late,
		AbsentDays:           c.Absent,
		AttendancePercentage: Percentage(c.Present, c.Total),
	}
}

// Percentage returns part/total*100 rounded to 1 decimal, 0 when total is 0.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

func CountStatuses(records []AttendanceRecord) StatusCounts {
	var c StatusCounts
	for _, r := range records {
		c.Total++
		switch r.Status {
		case StatusPresent:
			c.Present++
		case StatusLate:
			c.Late++
		case StatusAbsent:
			c.Absent++
		}
	}
	return c
}
