package portal

// View is the screen to present for a Snapshot.
type View int

const (
	ViewLogin View = iota
	ViewLoading
	ViewTeacher
	ViewStudent
)

func (v View) String() string {
	switch v {
	case ViewLogin:
		return "login"
	case ViewLoading:
		return "loading"
	case ViewTeacher:
		return "teacher"
	case ViewStudent:
		return "student"
	}
	return "unknown"
}

// Route picks the view of snap. A dashboard is only routed to once fully loaded.
func Route(snap Snapshot) View {
	switch snap.State {
	case StateLoadingProfile, StateLoadingDashboard, StateLoadingStudentAttendance:
		return ViewLoading
	case StateTeacherDashboard:
		return ViewTeacher
	case StateStudentDashboard:
		return ViewStudent
	}
	return ViewLogin
}
