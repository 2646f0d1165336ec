package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

const (
	classColumns      = "id, name, grade, teacher_id, created_at"
	studentColumns    = "id, code, name, class_id, email, parent_contact, created_at"
	attendanceColumns = "id, class_id, date, student_id, student_name, status, notes, marked_by, marked_at"
)

// attendanceOrderFields maps the orderable fields to their columns.
var attendanceOrderFields = map[string]string{
	"date":         "date",
	"student_name": "student_name",
	"status":       "status",
	"timestamp":    "marked_at",
	"marked_at":    "marked_at",
}

type studentRow struct {
	ID            string      `db:"id"`
	Code          string      `db:"code"`
	Name          string      `db:"name"`
	ClassID       string      `db:"class_id"`
	Email         null.String `db:"email"`
	ParentContact null.String `db:"parent_contact"`
	CreatedAt     time.Time   `db:"created_at"`
}

func (r studentRow) student() school.Student {
	return school.Student{
		ID:            r.ID,
		Code:          r.Code,
		Name:          r.Name,
		ClassID:       r.ClassID,
		Email:         r.Email.String,
		ParentContact: r.ParentContact.String,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

type attendanceRow struct {
	ID          string      `db:"id"`
	ClassID     string      `db:"class_id"`
	Date        string      `db:"date"`
	StudentID   string      `db:"student_id"`
	StudentName string      `db:"student_name"`
	Status      string      `db:"status"`
	Notes       null.String `db:"notes"`
	MarkedBy    string      `db:"marked_by"`
	MarkedAt    time.Time   `db:"marked_at"`
}

func (r attendanceRow) record() school.AttendanceRecord {
	return school.AttendanceRecord{
		ID:          r.ID,
		ClassID:     r.ClassID,
		Date:        r.Date,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		Status:      school.AttendanceStatus(r.Status),
		Notes:       r.Notes.String,
		MarkedBy:    r.MarkedBy,
		MarkedAt:    r.MarkedAt.UTC(),
	}
}

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo schoolRepository) CreateClass(ctx context.Context, cls school.Class) (school.Class, error) {
	cls.ID = uuid.New().String()
	cls.CreatedAt = cls.CreatedAt.UTC()
	q := repo.db.Rebind("INSERT INTO classes (" + classColumns + ") VALUES (?, ?, ?, ?, ?)")
	if _, err := repo.db.ExecContext(ctx, q, cls.ID, cls.Name, cls.Grade, cls.TeacherID, cls.CreatedAt); err != nil {
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo schoolRepository) GetClass(ctx context.Context, id string) (school.Class, error) {
	var cls school.Class
	q := repo.db.Rebind("SELECT " + classColumns + " FROM classes WHERE id = ?")
	if err := repo.db.QueryRowxContext(ctx, q, id).Scan(&cls.ID, &cls.Name, &cls.Grade, &cls.TeacherID, &cls.CreatedAt); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return school.Class{}, school.ErrClassNotFound
		}
		return school.Class{}, errors.Wrap(err, "getting class")
	}
	cls.CreatedAt = cls.CreatedAt.UTC()
	return cls, nil
}

func (repo schoolRepository) QueryClasses(ctx context.Context, teacherID string) ([]school.Class, error) {
	q := repo.db.Rebind("SELECT " + classColumns + " FROM classes WHERE teacher_id = ? ORDER BY name ASC, id ASC")
	rows, err := repo.db.QueryxContext(ctx, q, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	defer func() { _ = rows.Close() }()

	classes := make([]school.Class, 0)
	for rows.Next() {
		var cls school.Class
		if err := rows.Scan(&cls.ID, &cls.Name, &cls.Grade, &cls.TeacherID, &cls.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning class")
		}
		cls.CreatedAt = cls.CreatedAt.UTC()
		classes = append(classes, cls)
	}
	return classes, errors.Wrap(rows.Err(), "iterating classes")
}

func (repo schoolRepository) CreateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	std.ID = uuid.New().String()
	std.CreatedAt = std.CreatedAt.UTC()
	q := repo.db.Rebind("INSERT INTO students (" + studentColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	_, err := repo.db.ExecContext(ctx, q,
		std.ID, std.Code, std.Name, std.ClassID,
		null.NewString(std.Email, std.Email != ""),
		null.NewString(std.ParentContact, std.ParentContact != ""),
		std.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			msg := "a student with this code already exists"
			return school.Student{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "student_id", Error: msg})
		}
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo schoolRepository) GetStudent(ctx context.Context, id string) (school.Student, error) {
	var row studentRow
	q := repo.db.Rebind("SELECT " + studentColumns + " FROM students WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return school.Student{}, school.ErrStudentNotFound
		}
		return school.Student{}, errors.Wrap(err, "getting student")
	}
	return row.student(), nil
}

func (repo schoolRepository) QueryStudents(ctx context.Context, classID string) ([]school.Student, error) {
	var rows []studentRow
	q := repo.db.Rebind("SELECT " + studentColumns + " FROM students WHERE class_id = ? ORDER BY code ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, classID); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]school.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo schoolRepository) ReplaceAttendance(ctx context.Context, classID, date string, records []school.AttendanceRecord) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { err = core.FinishTx(tx, err) }()

	q := tx.Rebind("DELETE FROM attendance WHERE class_id = ? AND date = ?")
	if _, err = tx.ExecContext(ctx, q, classID, date); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	if len(records) == 0 {
		return nil
	}

	nCols := len(strings.Split(attendanceColumns, ","))
	args := make([]interface{}, 0, len(records)*nCols)
	for _, r := range records {
		args = append(args,
			uuid.New().String(), classID, date, r.StudentID, r.StudentName, string(r.Status),
			null.NewString(r.Notes, r.Notes != ""), r.MarkedBy, r.MarkedAt.UTC(),
		)
	}
	q = "INSERT INTO attendance (" + attendanceColumns + ") VALUES " +
		strmangle.Placeholders(false, len(records)*nCols, 1, nCols)
	if _, err = tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "inserting attendance")
	}
	return nil
}

func (repo schoolRepository) QueryAttendance(ctx context.Context, filter school.AttendanceFilter) ([]school.AttendanceRecord, error) {
	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.ClassID != "" {
		where = append(where, "class_id = ?")
		args = append(args, filter.ClassID)
	}
	if filter.Date != "" {
		where = append(where, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.StudentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, filter.StudentID)
	}

	q := "SELECT " + attendanceColumns + " FROM attendance"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + orderBy(filter.Ordering)

	var rows []attendanceRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	records := make([]school.AttendanceRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

// orderBy only accepts known fields, ID always breaks ties.
func orderBy(ordering []core.DBOrdering) string {
	clauses := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		col, ok := attendanceOrderFields[strings.ToLower(ord.Field)]
		if !ok {
			continue
		}
		clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	clauses = append(clauses, "id ASC")
	return strings.Join(clauses, ", ")
}
