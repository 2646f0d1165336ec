package boiledrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
	inmemdb "github.com/trezcool/mahudhurio/storage/database/inmem"
	boiledrepos "github.com/trezcool/mahudhurio/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/mahudhurio/storage/database/sqlx"
	testutil "github.com/trezcool/mahudhurio/tests"
)

type engine struct {
	usr    user.Repository
	school school.Repository
	stats  school.StatsRepository
}

func TestStatsRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	mem := inmemdb.New()
	memRepo := inmemdb.NewSchoolRepository(mem)

	engines := map[string]engine{
		"sqlboiler": {usr: sqlxrepos.NewUserRepository(db), school: sqlxrepos.NewSchoolRepository(db), stats: boiledrepos.NewStatsRepository(db)},
		"inmem":     {usr: inmemdb.NewUserRepository(mem), school: memRepo, stats: memRepo},
	}

	for name, e := range engines {
		t.Run(name, func(t *testing.T) {
			teacher := testutil.CreateUser(t, e.usr, "Ms. Nine", "teacher9", "", user.RoleTeacher, "", true)
			other := testutil.CreateUser(t, e.usr, "Mr. Ten", "teacher10", "", user.RoleTeacher, "", true)
			math := testutil.CreateClass(t, e.school, "Math 101", "Grade 10", teacher.ID)
			science := testutil.CreateClass(t, e.school, "Science 101", "Grade 10", teacher.ID)
			art := testutil.CreateClass(t, e.school, "Art 101", "Grade 9", other.ID)
			alice := testutil.CreateStudent(t, e.school, "ST001", "Alice", math.ID)
			bob := testutil.CreateStudent(t, e.school, "ST002", "Bob", math.ID)
			carol := testutil.CreateStudent(t, e.school, "ST003", "Carol", science.ID)
			dan := testutil.CreateStudent(t, e.school, "ST004", "Dan", art.ID)

			mark := func(cls school.Class, date string, statuses map[school.Student]school.AttendanceStatus) {
				records := make([]school.AttendanceRecord, 0, len(statuses))
				for std, status := range statuses {
					records = append(records, school.AttendanceRecord{
						StudentID:   std.ID,
						StudentName: std.Name,
						Status:      status,
						MarkedBy:    cls.TeacherID,
						MarkedAt:    time.Now().UTC(),
					})
				}
				require.NoError(t, e.school.ReplaceAttendance(ctx, cls.ID, date, records))
			}
			mark(math, "2024-03-01", map[school.Student]school.AttendanceStatus{alice: school.StatusPresent, bob: school.StatusAbsent})
			mark(math, "2024-03-02", map[school.Student]school.AttendanceStatus{alice: school.StatusLate, bob: school.StatusPresent})
			mark(math, "2024-03-03", map[school.Student]school.AttendanceStatus{alice: school.StatusAbsent})
			mark(science, "2024-03-01", map[school.Student]school.AttendanceStatus{carol: school.StatusLate})
			mark(art, "2024-03-01", map[school.Student]school.AttendanceStatus{dan: school.StatusAbsent})

			tests := []struct {
				name      string
				teacherID string
				date      string
				want      school.TeacherStats
			}{
				{
					name:      "busy day",
					teacherID: teacher.ID,
					date:      "2024-03-01",
					want:      school.TeacherStats{TotalClasses: 2, TotalStudents: 3, PresentToday: 1, AbsentToday: 1, MarkedToday: 3},
				},
				{
					name:      "unmarked day",
					teacherID: teacher.ID,
					date:      "2024-03-04",
					want:      school.TeacherStats{TotalClasses: 2, TotalStudents: 3},
				},
				{
					name:      "other teacher",
					teacherID: other.ID,
					date:      "2024-03-01",
					want:      school.TeacherStats{TotalClasses: 1, TotalStudents: 1, AbsentToday: 1, MarkedToday: 1},
				},
				{name: "unknown teacher", teacherID: "lol", date: "2024-03-01"},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := e.stats.TeacherStats(ctx, tt.teacherID, tt.date)
					require.NoError(t, err)
					assert.Equal(t, tt.want, got)
				})
			}

			counts, err := e.stats.StudentCounts(ctx, alice.ID)
			require.NoError(t, err)
			assert.Equal(t, school.StatusCounts{Total: 3, Present: 1, Late: 1, Absent: 1}, counts)

			counts, err = e.stats.StudentCounts(ctx, "lol")
			require.NoError(t, err)
			assert.Equal(t, school.StatusCounts{}, counts)
		})
	}
}
