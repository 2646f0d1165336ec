package portal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core/school"
)

func TestAggregator_LoadTeacherStats(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	math := env.class(t, "Math 101")

	client := env.client(env.requester(), NewMemoryTokenStore())
	ts := env.teacherSession(t, client)

	stats, err := client.Aggregator.LoadTeacherStats(ctx, ts)
	require.NoError(t, err)
	assert.Equal(t, school.TeacherStats{TotalClasses: 3, TotalStudents: 6}, stats)

	roster, err := client.Roster.Load(ctx, ts, math.ID)
	require.NoError(t, err)
	_, err = client.Submitter.Submit(ctx, ts, math.ID, school.Today(), AttendanceMap{
		studentByCode(t, roster, "ST001"): {Status: school.StatusAbsent, Notes: "sick"},
		studentByCode(t, roster, "ST002"): {Status: school.StatusPresent},
		studentByCode(t, roster, "ST003"): {Status: school.StatusLate},
	})
	require.NoError(t, err)

	stats, err = client.Aggregator.LoadTeacherStats(ctx, ts)
	require.NoError(t, err)
	assert.Equal(t, school.TeacherStats{TotalClasses: 3, TotalStudents: 6, PresentToday: 1, AbsentToday: 1, MarkedToday: 3}, stats)

	rejected := ts
	rejected.Token = "lol.lol.lol"
	_, err = client.Aggregator.LoadTeacherStats(ctx, rejected)
	assert.True(t, isUnauthenticated(err), "LoadTeacherStats() error = %v, want unauthenticated", err)
}

func Test_decodeStats(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Stats
		wantErr bool
	}{
		{
			name: "teacher",
			raw:  `{"total_classes":3,"total_students":6,"present_today":4,"absent_today":1,"attendance_marked_today":5}`,
			want: Stats{Teacher: &school.TeacherStats{TotalClasses: 3, TotalStudents: 6, PresentToday: 4, AbsentToday: 1, MarkedToday: 5}},
		},
		{
			name: "student",
			raw:  `{"total_days":3,"present_days":2,"attendance_percentage":66.7}`,
			want: Stats{Student: &school.StudentStats{TotalDays: 3, PresentDays: 2, AttendancePercentage: 66.7}},
		},
		{
			name: "student without any day yet",
			raw:  `{"total_days":0,"present_days":0,"attendance_percentage":0}`,
			want: Stats{Student: &school.StudentStats{}},
		},
		{name: "not an object", raw: `[1,2]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeStats(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeStats() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Student != nil, got.IsStudent())
		})
	}
}

func Test_sortRecords(t *testing.T) {
	records := func() []school.AttendanceRecord {
		return []school.AttendanceRecord{
			{ID: "b", Date: "2024-03-02"},
			{ID: "a", Date: "2024-03-01"},
			{ID: "c", Date: "2024-03-03"},
			{ID: "d", Date: "2024-03-01"},
		}
	}
	ids := func(records []school.AttendanceRecord) []string {
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.ID)
		}
		return out
	}

	asc := records()
	sortRecords(asc, Ascending)
	require.Equal(t, []string{"a", "d", "b", "c"}, ids(asc))

	desc := records()
	sortRecords(desc, Descending)
	require.Equal(t, []string{"c", "b", "a", "d"}, ids(desc))
}
