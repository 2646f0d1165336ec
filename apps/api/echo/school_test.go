package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
	testutil "github.com/trezcool/mahudhurio/tests"
)

type schoolFixtures struct {
	teacher, otherTeacher, studentUsr user.User
	math, science, history            school.Class
	john, emma, michael               school.Student
}

func setupSchool(t *testing.T) (*testApp, schoolFixtures) {
	t.Helper()
	app := setup(t)

	var f schoolFixtures
	f.teacher = testutil.CreateUser(t, app.usrRepo, "Ms. Sarah Johnson", "teacher1", "", user.RoleTeacher, "", true)
	f.otherTeacher = testutil.CreateUser(t, app.usrRepo, "Mr. Other", "teacher2", "", user.RoleTeacher, "", true)

	f.math = testutil.CreateClass(t, app.schoolRepo, "Math 101", "Grade 10", f.teacher.ID)
	f.science = testutil.CreateClass(t, app.schoolRepo, "Science 101", "Grade 10", f.teacher.ID)
	f.history = testutil.CreateClass(t, app.schoolRepo, "History 101", "Grade 9", f.otherTeacher.ID)

	f.john = testutil.CreateStudent(t, app.schoolRepo, "ST001", "John Smith", f.math.ID)
	f.emma = testutil.CreateStudent(t, app.schoolRepo, "ST002", "Emma Johnson", f.math.ID)
	f.michael = testutil.CreateStudent(t, app.schoolRepo, "ST003", "Michael Brown", f.math.ID)

	f.studentUsr = testutil.CreateUser(t, app.usrRepo, "John Smith", "st001", "", user.RoleStudent, f.john.ID, true)
	return app, f
}

func markAttendanceBody(t *testing.T, classID, date string, entries ...school.AttendanceEntry) []byte {
	return marchallObj(t, school.MarkAttendance{ClassID: classID, Date: date, Entries: entries})
}

func Test_schoolApi_classes(t *testing.T) {
	app, f := setupSchool(t)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "teacher gets own classes", token: getToken(t, app, f.teacher), wantCode: http.StatusOK, wantData: marchallObj(t, []school.Class{f.math, f.science})},
		{name: "student gets own class", token: getToken(t, app, f.studentUsr), wantCode: http.StatusOK, wantData: marchallObj(t, []school.Class{f.math})},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/api/classes"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_schoolApi_stats(t *testing.T) {
	app, f := setupSchool(t)

	body := markAttendanceBody(t, f.math.ID, school.Today(),
		school.AttendanceEntry{StudentID: f.john.ID, Status: school.StatusPresent},
		school.AttendanceEntry{StudentID: f.emma.ID, Status: school.StatusAbsent},
	)
	req, rec := newAuthRequest(http.MethodPost, "/api/attendance", getToken(t, app, f.teacher), body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "teacher", token: getToken(t, app, f.teacher), wantCode: http.StatusOK,
			wantData: marchallObj(t, school.TeacherStats{TotalClasses: 2, TotalStudents: 3, PresentToday: 1, AbsentToday: 1, MarkedToday: 2}),
		},
		{
			name: "student", token: getToken(t, app, f.studentUsr), wantCode: http.StatusOK,
			wantData: []byte(`{"total_days":1,"present_days":1,"attendance_percentage":100}`),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/api/dashboard/stats"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_schoolApi_classStudents(t *testing.T) {
	app, f := setupSchool(t)

	teacherToken := getToken(t, app, f.teacher)
	tests := []httpTest{
		{name: "Auth required", path: "/api/classes/" + f.math.ID + "/students", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "teachers only", path: "/api/classes/" + f.math.ID + "/students", token: getToken(t, app, f.studentUsr),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown class", path: "/api/classes/lol/students", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "Class not found"}),
		},
		{
			name: "class of another teacher", path: "/api/classes/" + f.history.ID + "/students", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "Class not found"}),
		},
		{
			name: "empty roster", path: "/api/classes/" + f.science.ID + "/students", token: teacherToken,
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "roster", path: "/api/classes/" + f.math.ID + "/students", token: teacherToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, []school.Student{f.john, f.emma, f.michael}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_schoolApi_markAttendance(t *testing.T) {
	app, f := setupSchool(t)

	teacherToken := getToken(t, app, f.teacher)
	date := "2024-01-15"
	reqMsg := "this field is required"

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "teachers only", token: getToken(t, app, f.studentUsr), wantCode: http.StatusForbidden,
			body:     markAttendanceBody(t, f.math.ID, date, school.AttendanceEntry{StudentID: f.john.ID, Status: school.StatusPresent}),
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: teacherToken, wantCode: http.StatusBadRequest, body: []byte(`{}`),
			wantData: marchallObj(t, map[string]string{"class_id": reqMsg, "date": reqMsg, "attendance_data": reqMsg}),
		},
		{
			name: "empty attendance data", token: teacherToken, wantCode: http.StatusBadRequest,
			body: []byte(`{"class_id":"` + f.math.ID + `","date":"` + date + `","attendance_data":[]}`),
		},
		{
			name: "invalid date", token: teacherToken, wantCode: http.StatusBadRequest,
			body:     markAttendanceBody(t, f.math.ID, "15/01/2024", school.AttendanceEntry{StudentID: f.john.ID, Status: school.StatusPresent}),
			wantData: marchallObj(t, map[string]string{"date": "must be a valid date (YYYY-MM-DD)"}),
		},
		{
			name: "invalid status", token: teacherToken, wantCode: http.StatusBadRequest,
			body:     markAttendanceBody(t, f.math.ID, date, school.AttendanceEntry{StudentID: f.john.ID, Status: "sleeping"}),
			wantData: marchallObj(t, map[string]string{"status": "status must be one of: present, late, absent"}),
		},
		{
			name: "class of another teacher", token: teacherToken, wantCode: http.StatusNotFound,
			body:     markAttendanceBody(t, f.history.ID, date, school.AttendanceEntry{StudentID: f.john.ID, Status: school.StatusPresent}),
			wantData: marchallObj(t, httpErr{Error: "Class not found"}),
		},
		{
			name: "marked", token: teacherToken, wantCode: http.StatusOK,
			body: markAttendanceBody(t, f.math.ID, date,
				school.AttendanceEntry{StudentID: f.john.ID, Status: "ABSENT", Notes: " sick "},
				school.AttendanceEntry{StudentID: f.emma.ID, Status: school.StatusLate},
				school.AttendanceEntry{StudentID: "not-enrolled", Status: school.StatusPresent},
			),
			wantData: marchallObj(t, MarkAttendanceResponse{Message: "Attendance marked successfully", Records: 2}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/attendance"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("records are stored and absences notified", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/attendance/"+f.math.ID+"?date="+date, teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var records []school.AttendanceRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 2)
		// ordered by student name
		assert.Equal(t, f.emma.ID, records[0].StudentID)
		assert.Equal(t, school.StatusLate, records[0].Status)
		assert.Equal(t, f.john.ID, records[1].StudentID)
		assert.Equal(t, school.StatusAbsent, records[1].Status)
		assert.Equal(t, "sick", records[1].Notes)
		assert.Equal(t, f.teacher.ID, records[1].MarkedBy)

		sent := app.mailSvc.Messages()
		require.Len(t, sent, 1)
		assert.Equal(t, f.john.Email, sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "John Smith")
		assert.Contains(t, sent[0].HTMLContent, "Math 101")
	})

	t.Run("a new submission replaces the day", func(t *testing.T) {
		body := markAttendanceBody(t, f.math.ID, date, school.AttendanceEntry{StudentID: f.michael.ID, Status: school.StatusPresent})
		req, rec := newAuthRequest(http.MethodPost, "/api/attendance", teacherToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/api/attendance/"+f.math.ID+"?date="+date, teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var records []school.AttendanceRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, f.michael.ID, records[0].StudentID)
	})
}

func Test_schoolApi_attendance(t *testing.T) {
	app, f := setupSchool(t)

	teacherToken := getToken(t, app, f.teacher)
	tests := []httpTest{
		{name: "Auth required", path: "/api/attendance/" + f.math.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "teachers only", path: "/api/attendance/" + f.math.ID, token: getToken(t, app, f.studentUsr),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "invalid date", path: "/api/attendance/" + f.math.ID + "?date=lol", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"date": "must be a valid date (YYYY-MM-DD)"}),
		},
		{
			name: "class of another teacher", path: "/api/attendance/" + f.history.ID, token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "Class not found"}),
		},
		{name: "nothing marked yet", path: "/api/attendance/" + f.math.ID + "?date=2024-01-15", token: teacherToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_schoolApi_studentAttendance(t *testing.T) {
	app, f := setupSchool(t)

	teacherToken := getToken(t, app, f.teacher)
	for _, d := range []struct {
		date   string
		status school.AttendanceStatus
	}{{"2024-01-15", school.StatusPresent}, {"2024-01-16", school.StatusAbsent}, {"2024-01-17", school.StatusPresent}} {
		body := markAttendanceBody(t, f.math.ID, d.date, school.AttendanceEntry{StudentID: f.john.ID, Status: d.status})
		req, rec := newAuthRequest(http.MethodPost, "/api/attendance", teacherToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	t.Run("students only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/student/attendance", teacherToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	t.Run("summary", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/student/attendance", getToken(t, app, f.studentUsr))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var summary school.StudentAttendance
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
		assert.Equal(t, f.john.ID, summary.Student.ID)
		assert.Equal(t, school.Statistics{TotalDays: 3, PresentDays: 2, AbsentDays: 1, AttendancePercentage: 66.7}, summary.Statistics)
		require.Len(t, summary.Records, 3)
		// most recent first
		assert.Equal(t, "2024-01-17", summary.Records[0].Date)
		assert.Equal(t, "2024-01-15", summary.Records[2].Date)
	})

	t.Run("student stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/dashboard/stats", getToken(t, app, f.studentUsr))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, school.StudentStats{TotalDays: 3, PresentDays: 2, AttendancePercentage: 66.7}),
		}, rec)
	})
}
