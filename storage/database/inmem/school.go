package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

type schoolRepository struct {
	db *DB
}

var (
	_ school.Repository      = (*schoolRepository)(nil) // interface compliance check
	_ school.StatsRepository = (*schoolRepository)(nil)
)

// NewSchoolRepository returns a repository implementing both school.Repository and school.StatsRepository.
func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateClass(ctx context.Context, cls school.Class) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cls.ID = uuid.New().String()
	repo.db.classes[cls.ID] = cls
	return cls, nil
}

func (repo *schoolRepository) GetClass(ctx context.Context, id string) (school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return cls, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *schoolRepository) QueryClasses(ctx context.Context, teacherID string) ([]school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]school.Class, 0)
	for _, cls := range repo.db.classes {
		if cls.TeacherID == teacherID {
			classes = append(classes, cls)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, s := range repo.db.students {
		if s.Code == std.Code {
			return school.Student{}, core.NewValidationError(
				errors.New("a student with this code already exists"),
				core.FieldError{Field: "student_id", Error: "a student with this code already exists"},
			)
		}
	}
	std.ID = uuid.New().String()
	repo.db.students[std.ID] = std
	return std, nil
}

func (repo *schoolRepository) GetStudent(ctx context.Context, id string) (school.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if std, ok := repo.db.students[id]; ok {
		return std, nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) QueryStudents(ctx context.Context, classID string) ([]school.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]school.Student, 0)
	for _, std := range repo.db.students {
		if std.ClassID == classID {
			students = append(students, std)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Code < students[j].Code })
	return students, nil
}

func (repo *schoolRepository) ReplaceAttendance(ctx context.Context, classID, date string, records []school.AttendanceRecord) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, r := range repo.db.attendance {
		if r.ClassID == classID && r.Date == date {
			delete(repo.db.attendance, id)
		}
	}
	for _, r := range records {
		r.ID = uuid.New().String()
		r.ClassID = classID
		r.Date = date
		repo.db.attendance[r.ID] = r
	}
	return nil
}

func (repo *schoolRepository) QueryAttendance(ctx context.Context, filter school.AttendanceFilter) ([]school.AttendanceRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]school.AttendanceRecord, 0)
	for _, r := range repo.db.attendance {
		if filter.ClassID != "" && r.ClassID != filter.ClassID {
			continue
		}
		if filter.Date != "" && r.Date != filter.Date {
			continue
		}
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		records = append(records, r)
	}
	sortRecords(records, filter.Ordering)
	return records, nil
}

func (repo *schoolRepository) TeacherStats(ctx context.Context, teacherID, date string) (school.TeacherStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var stats school.TeacherStats
	owned := make(map[string]bool)
	for _, cls := range repo.db.classes {
		if cls.TeacherID == teacherID {
			owned[cls.ID] = true
			stats.TotalClasses++
		}
	}
	for _, std := range repo.db.students {
		if owned[std.ClassID] {
			stats.TotalStudents++
		}
	}
	for _, r := range repo.db.attendance {
		if !owned[r.ClassID] || r.Date != date {
			continue
		}
		stats.MarkedToday++
		switch r.Status {
		case school.StatusPresent:
			stats.PresentToday++
		case school.StatusAbsent:
			stats.AbsentToday++
		}
	}
	return stats, nil
}

func (repo *schoolRepository) StudentCounts(ctx context.Context, studentID string) (school.StatusCounts, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]school.AttendanceRecord, 0)
	for _, r := range repo.db.attendance {
		if r.StudentID == studentID {
			records = append(records, r)
		}
	}
	return school.CountStatuses(records), nil
}

// sortRecords orders records by the given fields (date, student_name, status, timestamp); ID breaks ties.
func sortRecords(records []school.AttendanceRecord, ordering []core.DBOrdering) {
	field := func(r school.AttendanceRecord, name string) string {
		switch strings.ToLower(name) {
		case "date":
			return r.Date
		case "student_name":
			return r.StudentName
		case "status":
			return string(r.Status)
		case "timestamp", "marked_at":
			return r.MarkedAt.UTC().Format("2006-01-02T15:04:05.000000000")
		}
		return ""
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, ord := range ordering {
			a, b := field(records[i], ord.Field), field(records[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return records[i].ID < records[j].ID
	})
}
