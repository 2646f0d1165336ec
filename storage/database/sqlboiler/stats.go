package boiledrepos

import (
	"context"

	"github.com/friendsofgo/errors"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/mahudhurio/core/school"
)

const (
	teacherStatsQuery = `SELECT
	(SELECT COUNT(*) FROM classes WHERE teacher_id = ?) AS total_classes,
	(SELECT COUNT(*) FROM students s JOIN classes c ON c.id = s.class_id WHERE c.teacher_id = ?) AS total_students,
	(SELECT COUNT(*) FROM attendance a JOIN classes c ON c.id = a.class_id
		WHERE c.teacher_id = ? AND a.date = ? AND a.status = 'present') AS present_today,
	(SELECT COUNT(*) FROM attendance a JOIN classes c ON c.id = a.class_id
		WHERE c.teacher_id = ? AND a.date = ? AND a.status = 'absent') AS absent_today,
	(SELECT COUNT(*) FROM attendance a JOIN classes c ON c.id = a.class_id
		WHERE c.teacher_id = ? AND a.date = ?) AS marked_today`

	studentCountsQuery = `SELECT
	COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN status = 'present' THEN 1 ELSE 0 END), 0) AS present,
	COALESCE(SUM(CASE WHEN status = 'late' THEN 1 ELSE 0 END), 0) AS late,
	COALESCE(SUM(CASE WHEN status = 'absent' THEN 1 ELSE 0 END), 0) AS absent
FROM attendance WHERE student_id = ?`
)

type teacherStatsRow struct {
	TotalClasses  int `boil:"total_classes"`
	TotalStudents int `boil:"total_students"`
	PresentToday  int `boil:"present_today"`
	AbsentToday   int `boil:"absent_today"`
	MarkedToday   int `boil:"marked_today"`
}

// statsRepository is a read model computing dashboard counters with raw queries bound by sqlboiler.
type statsRepository struct {
	db *sqlx.DB
}

var _ school.StatsRepository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *sqlx.DB) *statsRepository {
	return &statsRepository{db: db}
}

func (repo statsRepository) TeacherStats(ctx context.Context, teacherID, date string) (school.TeacherStats, error) {
	var row teacherStatsRow
	q := repo.db.Rebind(teacherStatsQuery)
	err := queries.Raw(q, teacherID, teacherID, teacherID, date, teacherID, date, teacherID, date).Bind(ctx, repo.db, &row)
	if err != nil {
		return school.TeacherStats{}, errors.Wrap(err, "boiledrepos: binding teacher stats")
	}
	return school.TeacherStats{
		TotalClasses:  row.TotalClasses,
		TotalStudents: row.TotalStudents,
		PresentToday:  row.PresentToday,
		AbsentToday:   row.AbsentToday,
		MarkedToday:   row.MarkedToday,
	}, nil
}

func (repo statsRepository) StudentCounts(ctx context.Context, studentID string) (school.StatusCounts, error) {
	var counts school.StatusCounts
	q := repo.db.Rebind(studentCountsQuery)
	if err := queries.Raw(q, studentID).Bind(ctx, repo.db, &counts); err != nil {
		return school.StatusCounts{}, errors.Wrap(err, "boiledrepos: binding student counts")
	}
	return counts, nil
}
