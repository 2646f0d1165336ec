package school

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/user"
)

var (
	// errors
	ErrClassNotFound   = errors.New("class not found")
	ErrStudentNotFound = errors.New("student record not found")

	NowFunc = time.Now // mockable

	absenceNoticeTemplate = "absence_notice"
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		// QueryClasses returns the classes owned by teacherID, ordered by name.
		QueryClasses(ctx context.Context, teacherID string) ([]Class, error)
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		// QueryStudents returns the roster of classID, ordered by student code.
		QueryStudents(ctx context.Context, classID string) ([]Student, error)
		// ReplaceAttendance atomically deletes every record of (classID, date) and inserts records.
		ReplaceAttendance(ctx context.Context, classID, date string, records []AttendanceRecord) error
		QueryAttendance(ctx context.Context, filter AttendanceFilter) ([]AttendanceRecord, error)
	}

	// StatsRepository computes dashboard counters in the storage layer.
	StatsRepository interface {
		TeacherStats(ctx context.Context, teacherID, date string) (TeacherStats, error)
		StudentCounts(ctx context.Context, studentID string) (StatusCounts, error)
	}

	Service interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		CreateStudent(ctx context.Context, std Student) (Student, error)
		Classes(ctx context.Context, usr user.User) ([]Class, error)
		ClassStudents(ctx context.Context, usr user.User, classID string) ([]Student, error)
		// MarkAttendance replaces the attendance of a class on a day and returns the number of stored records.
		MarkAttendance(ctx context.Context, usr user.User, ma MarkAttendance) (int, error)
		// Attendance lists the records of a class, optionally for one date. Default ordering: date, student_name.
		Attendance(ctx context.Context, usr user.User, classID, date string, ordering ...core.DBOrdering) ([]AttendanceRecord, error)
		StudentAttendance(ctx context.Context, usr user.User) (StudentAttendance, error)
		TeacherStats(ctx context.Context, usr user.User) (TeacherStats, error)
		StudentStats(ctx context.Context, usr user.User) (StudentStats, error)
	}

	Options struct {
		NotifyAbsences bool
	}

	service struct {
		repo    Repository
		stats   StatsRepository
		mailSvc core.EmailService
		logger  core.Logger
		opts    Options
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, stats StatsRepository, mailSvc core.EmailService, logger core.Logger, opts Options) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(stats, "stats"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{
		repo:    repo,
		stats:   stats,
		mailSvc: mailSvc,
		logger:  logger,
		opts:    opts,
	}
}

// Today returns the server's current calendar day.
func Today() string {
	return core.FormatDate(NowFunc())
}

func (svc *service) CreateClass(ctx context.Context, cls Class) (Class, error) {
	cls.Name = core.CleanString(cls.Name)
	cls.Grade = core.CleanString(cls.Grade)
	if cls.CreatedAt.IsZero() {
		cls.CreatedAt = NowFunc().UTC()
	}
	return svc.repo.CreateClass(ctx, cls)
}

func (svc *service) CreateStudent(ctx context.Context, std Student) (Student, error) {
	std.Code = core.CleanString(std.Code)
	std.Name = core.CleanString(std.Name)
	std.Email = core.CleanString(std.Email, true /* lower */)
	if std.CreatedAt.IsZero() {
		std.CreatedAt = NowFunc().UTC()
	}
	if _, err := svc.repo.GetClass(ctx, std.ClassID); err != nil {
		return Student{}, err
	}
	return svc.repo.CreateStudent(ctx, std)
}

func (svc *service) Classes(ctx context.Context, usr user.User) ([]Class, error) {
	switch usr.Role {
	case user.RoleTeacher:
		return svc.repo.QueryClasses(ctx, usr.ID)
	case user.RoleStudent:
		if usr.StudentID == "" {
			return []Class{}, nil
		}
		std, err := svc.repo.GetStudent(ctx, usr.StudentID)
		if err != nil {
			if errors.Cause(err) == ErrStudentNotFound {
				return []Class{}, nil
			}
			return nil, errors.Wrap(err, "finding student")
		}
		cls, err := svc.repo.GetClass(ctx, std.ClassID)
		if err != nil {
			if errors.Cause(err) == ErrClassNotFound {
				return []Class{}, nil
			}
			return nil, errors.Wrap(err, "finding class")
		}
		return []Class{cls}, nil
	}
	return []Class{}, nil
}

// ownedClass returns the class `classID` if usr is a teacher who owns it.
func (svc *service) ownedClass(ctx context.Context, usr user.User, classID string) (Class, error) {
	if !usr.IsTeacher() {
		return Class{}, core.ErrPermissionDenied
	}
	cls, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	if cls.TeacherID != usr.ID {
		return Class{}, ErrClassNotFound
	}
	return cls, nil
}

func (svc *service) ClassStudents(ctx context.Context, usr user.User, classID string) ([]Student, error) {
	if _, err := svc.ownedClass(ctx, usr, classID); err != nil {
		return nil, err
	}
	return svc.repo.QueryStudents(ctx, classID)
}

func (svc *service) MarkAttendance(ctx context.Context, usr user.User, ma MarkAttendance) (int, error) {
	cls, err := svc.ownedClass(ctx, usr, ma.ClassID)
	if err != nil {
		return 0, err
	}

	roster, err := svc.repo.QueryStudents(ctx, cls.ID)
	if err != nil {
		return 0, errors.Wrap(err, "querying roster")
	}
	students := make(map[string]Student, len(roster))
	for _, std := range roster {
		students[std.ID] = std
	}

	// last entry wins for a given student; students outside the roster are skipped
	entries := make(map[string]AttendanceEntry, len(ma.Entries))
	order := make([]string, 0, len(ma.Entries))
	for _, e := range ma.Entries {
		if _, ok := students[e.StudentID]; !ok {
			svc.logger.Debug(fmt.Sprintf("skipping unknown student %q in class %q", e.StudentID, cls.ID))
			continue
		}
		if _, seen := entries[e.StudentID]; !seen {
			order = append(order, e.StudentID)
		}
		entries[e.StudentID] = e
	}

	now := NowFunc().UTC()
	records := make([]AttendanceRecord, 0, len(order))
	for _, stdID := range order {
		e := entries[stdID]
		records = append(records, AttendanceRecord{
			ClassID:     cls.ID,
			Date:        ma.Date,
			StudentID:   stdID,
			StudentName: students[stdID].Name,
			Status:      e.Status,
			Notes:       e.Notes,
			MarkedBy:    usr.ID,
			MarkedAt:    now,
		})
	}

	if err := svc.repo.ReplaceAttendance(ctx, cls.ID, ma.Date, records); err != nil {
		return 0, errors.Wrap(err, "replacing attendance")
	}

	if svc.opts.NotifyAbsences {
		svc.notifyAbsences(cls, records, students)
	}
	return len(records), nil
}

func (svc *service) notifyAbsences(cls Class, records []AttendanceRecord, students map[string]Student) {
	messages := make([]*core.EmailMessage, 0)
	for _, r := range records {
		std := students[r.StudentID]
		if r.Status != StatusAbsent || std.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: std.Name, Address: std.Email}},
			Subject:      fmt.Sprintf("Absence notice: %s (%s)", cls.Name, r.Date),
			Category:     absenceNoticeTemplate,
			TemplateName: absenceNoticeTemplate,
			TemplateData: map[string]string{
				"StudentName": std.Name,
				"ClassName":   cls.Name,
				"Date":        r.Date,
				"Notes":       r.Notes,
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}

func (svc *service) Attendance(ctx context.Context, usr user.User, classID, date string, ordering ...core.DBOrdering) ([]AttendanceRecord, error) {
	if _, err := svc.ownedClass(ctx, usr, classID); err != nil {
		return nil, err
	}
	if date != "" && !core.IsDate(date) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "must be a valid date (YYYY-MM-DD)"})
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "date", Ascending: true}, {Field: "student_name", Ascending: true}}
	}
	return svc.repo.QueryAttendance(ctx, AttendanceFilter{
		ClassID:  classID,
		Date:     date,
		Ordering: ordering,
	})
}

func (svc *service) studentRecord(ctx context.Context, usr user.User) (Student, error) {
	if !usr.IsStudent() {
		return Student{}, core.ErrPermissionDenied
	}
	if usr.StudentID == "" {
		return Student{}, ErrStudentNotFound
	}
	return svc.repo.GetStudent(ctx, usr.StudentID)
}

func (svc *service) StudentAttendance(ctx context.Context, usr user.User) (StudentAttendance, error) {
	std, err := svc.studentRecord(ctx, usr)
	if err != nil {
		return StudentAttendance{}, err
	}
	records, err := svc.repo.QueryAttendance(ctx, AttendanceFilter{
		StudentID: std.ID,
		Ordering:  []core.DBOrdering{{Field: "date", Ascending: false}},
	})
	if err != nil {
		return StudentAttendance{}, errors.Wrap(err, "querying attendance")
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date > records[j].Date })

	return StudentAttendance{
		Student:    std,
		Records:    records,
		Statistics: CountStatuses(records).Statistics(),
	}, nil
}

func (svc *service) TeacherStats(ctx context.Context, usr user.User) (TeacherStats, error) {
	if !usr.IsTeacher() {
		return TeacherStats{}, core.ErrPermissionDenied
	}
	stats, err := svc.stats.TeacherStats(ctx, usr.ID, Today())
	return stats, errors.Wrap(err, "computing teacher stats")
}

func (svc *service) StudentStats(ctx context.Context, usr user.User) (StudentStats, error) {
	if !usr.IsStudent() {
		return StudentStats{}, core.ErrPermissionDenied
	}
	// users without a student record get zeroed stats
	if usr.StudentID == "" {
		return StudentStats{}, nil
	}
	counts, err := svc.stats.StudentCounts(ctx, usr.StudentID)
	if err != nil {
		return StudentStats{}, errors.Wrap(err, "computing student stats")
	}
	return StudentStats{
		TotalDays:            counts.Total,
		PresentDays:          counts.Present,
		AttendancePercentage: Percentage(counts.Present, counts.Total),
	}, nil
}
