package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

// State is the state of the Dashboard workflow.
type State int

const (
	StateUnauthenticated State = iota
	StateLoadingProfile
	StateLoadingDashboard
	StateLoadingStudentAttendance
	StateTeacherDashboard
	StateStudentDashboard
)

var stateNames = map[State]string{
	StateUnauthenticated:          "unauthenticated",
	StateLoadingProfile:           "loading profile",
	StateLoadingDashboard:         "loading dashboard",
	StateLoadingStudentAttendance: "loading student attendance",
	StateTeacherDashboard:         "teacher dashboard",
	StateStudentDashboard:         "student dashboard",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Message is the single user-visible message slot. The next successful action replaces it.
type Message struct {
	Text  string
	Error bool
}

// Snapshot is a copy of the dashboard state, safe to read while the dashboard keeps working.
type Snapshot struct {
	State   State
	Session *Session
	Message Message

	Classes      []school.Class
	TeacherStats *school.TeacherStats
	StudentStats *school.StudentStats
	Summary      *StudentAttendanceSummary

	ClassID       string
	Date          string
	Roster        []school.Student
	Attendance    AttendanceMap
	LoadingRoster bool
	Submitting    bool
}

// Client bundles the components talking to the attendance API.
type Client struct {
	Sessions   *SessionManager
	Roster     *RosterLoader
	Reconciler *Reconciler
	Submitter  *Submitter
	Aggregator *Aggregator
}

func NewClient(req Requester, store TokenStore, validate *validator.Validate, translator ut.Translator, logger core.Logger) *Client {
	return &Client{
		Sessions:   NewSessionManager(req, store, logger),
		Roster:     NewRosterLoader(req),
		Reconciler: NewReconciler(req),
		Submitter:  NewSubmitter(req, validate, translator),
		Aggregator: NewAggregator(req),
	}
}

type DashboardOption func(*Dashboard)

// WithOrder sets the order of the records of the student summary (default: Ascending).
func WithOrder(order Order) DashboardOption {
	return func(d *Dashboard) { d.order = order }
}

// WithToday sets the function returning the date selected by default.
func WithToday(fn func() string) DashboardOption {
	return func(d *Dashboard) { d.today = fn }
}

// Dashboard drives the view state machine:
//
//	unauthenticated -> loading profile -> loading dashboard -> [loading student attendance] -> teacher|student dashboard
//
// Any failure while loading goes back to unauthenticated; logout and session expiry too.
// The mutex is never held during a network call.
type Dashboard struct {
	client *Client
	logger core.Logger
	order  Order
	today  func() string

	mu      sync.Mutex
	gen     uint64 // bumped when a session starts or ends
	seq     uint64 // bumped when the class/date selection changes, and with gen
	state   State
	session *Session
	message Message

	classes []school.Class
	stats   Stats
	summary *StudentAttendanceSummary

	classID       string
	date          string
	roster        []school.Student
	attendance    AttendanceMap
	loadingRoster bool
	submitting    bool
}

func NewDashboard(client *Client, logger core.Logger, opts ...DashboardOption) *Dashboard {
	vala.BeginValidation().Validate(
		vala.IsNotNil(client, "client"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	d := &Dashboard{
		client: client,
		logger: logger,
		order:  Ascending,
		today:  func() string { return core.FormatDate(time.Now()) },
	}
	for _, opt := range opts {
		opt(d)
	}
	client.Sessions.OnTeardown(d.reset)
	return d
}

func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := Snapshot{
		State:         d.state,
		Message:       d.message,
		ClassID:       d.classID,
		Date:          d.date,
		LoadingRoster: d.loadingRoster,
		Submitting:    d.submitting,
	}
	if d.session != nil {
		sess := *d.session
		snap.Session = &sess
	}
	if d.classes != nil {
		snap.Classes = append([]school.Class{}, d.classes...)
	}
	if d.stats.Teacher != nil {
		st := *d.stats.Teacher
		snap.TeacherStats = &st
	}
	if d.stats.Student != nil {
		st := *d.stats.Student
		snap.StudentStats = &st
	}
	if d.summary != nil {
		summary := *d.summary
		summary.Records = append([]school.AttendanceRecord{}, d.summary.Records...)
		snap.Summary = &summary
	}
	if d.roster != nil {
		snap.Roster = append([]school.Student{}, d.roster...)
	}
	if d.attendance != nil {
		snap.Attendance = d.attendance.clone()
	}
	return snap
}

// Start restores the session from the stored token, if any, and loads its dashboard.
// A rejected token leaves the dashboard unauthenticated with the session expired notice.
func (d *Dashboard) Start(ctx context.Context) error {
	gen := d.begin()

	sess, err := d.client.Sessions.Restore(ctx)
	if err != nil {
		d.abort(gen, err, "Failed to restore session")
		return err
	}
	if sess == nil {
		d.mu.Lock()
		if d.gen == gen {
			d.state = StateUnauthenticated
		}
		d.mu.Unlock()
		return nil
	}
	return d.enter(ctx, gen, sess, "")
}

// Login replaces any current session with the one of username.
func (d *Dashboard) Login(ctx context.Context, username, password string) error {
	// ends the previous session (and runs its teardown) before the new flow starts
	d.client.Sessions.discard()
	gen := d.begin()

	sess, err := d.client.Sessions.Login(ctx, username, password)
	if err != nil {
		d.abort(gen, err, "Login failed")
		return err
	}
	return d.enter(ctx, gen, sess, "Login successful!")
}

// Logout ends the session. No dashboard state survives it.
func (d *Dashboard) Logout() error {
	err := d.client.Sessions.Logout()

	d.mu.Lock()
	d.message = Message{Text: "Logged out successfully!"}
	d.mu.Unlock()
	return err
}

// Refresh fetches the classes and the counters (and the student summary) again.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.mu.Lock()
	sess, gen := d.session, d.gen
	ready := d.state == StateTeacherDashboard || d.state == StateStudentDashboard
	d.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}
	if !ready {
		return ErrBusy
	}

	data, err := d.fetchDashboardData(ctx, gen, sess)
	if err != nil {
		if d.stale(gen) {
			return ErrStaleResponse
		}
		return d.fail(err, "Failed to fetch dashboard data")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return ErrStaleResponse
	}
	d.setData(data)
	return nil
}

// SelectClass selects a class and loads its reconciled attendance for the selected date (today by default).
// A result arriving after another selection was made is discarded with ErrStaleResponse.
func (d *Dashboard) SelectClass(ctx context.Context, classID string) error {
	d.mu.Lock()
	ts, err := d.teacherLocked()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	classID = core.CleanString(classID)
	if classID == "" {
		err := core.NewValidationError(errors.New("Please select a class"))
		d.message = Message{Text: err.Error(), Error: true}
		d.mu.Unlock()
		return err
	}
	d.classID = classID
	if d.date == "" {
		d.date = d.today()
	}
	date := d.date
	seq := d.beginLoadLocked()
	d.mu.Unlock()

	return d.loadAttendance(ctx, ts, seq, classID, date)
}

// SelectDate selects the date and, when a class is selected, reloads its reconciled attendance.
func (d *Dashboard) SelectDate(ctx context.Context, date string) error {
	d.mu.Lock()
	ts, err := d.teacherLocked()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	date = core.CleanString(date)
	if !core.IsDate(date) {
		err := core.NewValidationError(nil, core.FieldError{Field: "date", Error: "must be a valid date (YYYY-MM-DD)"})
		d.message = Message{Text: err.Error(), Error: true}
		d.mu.Unlock()
		return err
	}
	d.date = date
	classID := d.classID
	if classID == "" {
		d.mu.Unlock()
		return nil
	}
	seq := d.beginLoadLocked()
	d.mu.Unlock()

	return d.loadAttendance(ctx, ts, seq, classID, date)
}

// Edit sets field of a student in the attendance being edited.
// Edits are refused with ErrBusy while a submission or a roster load is in flight.
func (d *Dashboard) Edit(studentID string, field Field, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.submitting || d.loadingRoster {
		return ErrBusy
	}
	if d.attendance == nil {
		err := core.NewValidationError(errors.New("Please select a class"))
		d.message = Message{Text: err.Error(), Error: true}
		return err
	}
	m, err := d.attendance.Apply(studentID, field, value)
	if err != nil {
		d.message = Message{Text: err.Error(), Error: true}
		return err
	}
	d.attendance = m
	d.message = Message{}
	return nil
}

// Submit sends the attendance being edited. On failure the edits are kept for a retry.
// On success the attendance of the day and the counters are fetched again.
func (d *Dashboard) Submit(ctx context.Context) (Ack, error) {
	d.mu.Lock()
	ts, err := d.teacherLocked()
	if err != nil {
		d.mu.Unlock()
		return Ack{}, err
	}
	if d.submitting || d.loadingRoster {
		d.mu.Unlock()
		return Ack{}, ErrBusy
	}
	if d.classID == "" || d.attendance == nil {
		err := core.NewValidationError(errors.New("Please select a class"))
		d.message = Message{Text: err.Error(), Error: true}
		d.mu.Unlock()
		return Ack{}, err
	}
	classID, date, attendance, seq := d.classID, d.date, d.attendance, d.seq
	d.submitting = true
	d.message = Message{}
	d.mu.Unlock()

	ack, err := d.client.Submitter.Submit(ctx, ts, classID, date, attendance)

	d.mu.Lock()
	d.submitting = false
	d.mu.Unlock()
	if err != nil {
		return Ack{}, d.fail(err, "Failed to mark attendance")
	}
	d.logger.Info(fmt.Sprintf("attendance of class %s on %s submitted (%d records)", classID, date, ack.Records))

	// read back what was stored, unless the selection changed meanwhile
	d.mu.Lock()
	reload := d.seq == seq
	if reload {
		seq = d.beginLoadLocked()
	}
	d.mu.Unlock()
	if reload {
		if err := d.loadAttendance(ctx, ts, seq, classID, date); err != nil && err != ErrStaleResponse {
			return ack, err
		}
	}
	if err := d.Refresh(ctx); err != nil {
		return ack, err
	}

	d.mu.Lock()
	d.message = Message{Text: "Attendance marked successfully!"}
	d.mu.Unlock()
	return ack, nil
}

type dashboardData struct {
	classes []school.Class
	stats   Stats
	summary *StudentAttendanceSummary
}

// fetchDashboardData fetches the classes and the stats concurrently. The student summary is fetched
// after both, and only when the stats have the student shape.
func (d *Dashboard) fetchDashboardData(ctx context.Context, gen uint64, sess *Session) (dashboardData, error) {
	var data dashboardData

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		classes, err := d.client.Roster.Classes(gctx, sess)
		data.classes = classes
		return err
	})
	g.Go(func() error {
		stats, err := d.client.Aggregator.LoadStats(gctx, sess)
		data.stats = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return dashboardData{}, err
	}

	if !data.stats.IsStudent() {
		return data, nil
	}
	ss, err := sess.AsStudent()
	if err != nil {
		return dashboardData{}, errors.Wrap(err, "student stats for a non-student session")
	}

	d.mu.Lock()
	if d.gen == gen && d.state == StateLoadingDashboard {
		d.state = StateLoadingStudentAttendance
	}
	d.mu.Unlock()

	summary, err := d.client.Aggregator.LoadStudentSummary(ctx, ss, d.order)
	if err != nil {
		return dashboardData{}, err
	}
	data.summary = &summary
	return data, nil
}

// enter loads the dashboard of sess. The dashboard is only shown once everything is loaded.
func (d *Dashboard) enter(ctx context.Context, gen uint64, sess *Session, successMsg string) error {
	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return ErrStaleResponse
	}
	d.state = StateLoadingDashboard
	d.session = sess
	d.mu.Unlock()

	data, err := d.fetchDashboardData(ctx, gen, sess)
	if err != nil {
		if d.stale(gen) {
			return ErrStaleResponse
		}
		if isUnauthenticated(err) {
			return d.expire()
		}
		d.client.Sessions.drop()
		d.mu.Lock()
		d.message = Message{Text: messageFor(err, "Failed to fetch dashboard data"), Error: true}
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return ErrStaleResponse
	}
	d.setData(data)
	if data.stats.IsStudent() {
		d.state = StateStudentDashboard
	} else {
		d.state = StateTeacherDashboard
	}
	d.message = Message{Text: successMsg}
	return nil
}

func (d *Dashboard) loadAttendance(ctx context.Context, ts TeacherSession, seq uint64, classID, date string) error {
	roster, err := d.client.Roster.Load(ctx, ts, classID)
	var view AttendanceMap
	if err == nil {
		view, err = d.client.Reconciler.Build(ctx, ts, classID, date, roster)
	}

	d.mu.Lock()
	if d.seq != seq {
		d.mu.Unlock()
		d.logger.Debug(fmt.Sprintf("discarding stale attendance of class %s on %s", classID, date))
		return ErrStaleResponse
	}
	d.loadingRoster = false
	if err != nil {
		d.mu.Unlock()
		return d.fail(err, "Failed to fetch students")
	}
	d.roster = roster
	d.attendance = view
	d.message = Message{}
	d.mu.Unlock()
	return nil
}

// fail reports err in the message slot, expiring the session on a 401. It returns the error to hand to the caller.
func (d *Dashboard) fail(err error, fallback string) error {
	if isUnauthenticated(err) {
		return d.expire()
	}
	d.mu.Lock()
	d.message = Message{Text: messageFor(err, fallback), Error: true}
	d.mu.Unlock()
	return err
}

func (d *Dashboard) expire() error {
	err := d.client.Sessions.Expire()
	d.mu.Lock()
	d.message = Message{Text: SessionExpiredNotice, Error: true}
	d.mu.Unlock()
	return err
}

func (d *Dashboard) abort(gen uint64, err error, fallback string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return
	}
	d.state = StateUnauthenticated
	d.session = nil
	d.message = Message{Text: messageFor(err, fallback), Error: true}
}

func (d *Dashboard) stale(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen != gen
}

// begin starts a new session flow from a clean state.
func (d *Dashboard) begin() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	d.state = StateLoadingProfile
	return d.gen
}

// reset runs on session teardown.
func (d *Dashboard) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	d.state = StateUnauthenticated
}

func (d *Dashboard) clearLocked() {
	d.gen++
	d.seq++
	d.session = nil
	d.message = Message{}
	d.classes = nil
	d.stats = Stats{}
	d.summary = nil
	d.classID = ""
	d.date = ""
	d.roster = nil
	d.attendance = nil
	d.loadingRoster = false
	d.submitting = false
}

func (d *Dashboard) setData(data dashboardData) {
	d.classes = data.classes
	d.stats = data.stats
	d.summary = data.summary
}

func (d *Dashboard) beginLoadLocked() uint64 {
	d.seq++
	d.roster = nil
	d.attendance = nil
	d.loadingRoster = true
	return d.seq
}

func (d *Dashboard) teacherLocked() (TeacherSession, error) {
	ts, err := d.session.AsTeacher()
	if err != nil {
		return TeacherSession{}, err
	}
	if d.state != StateTeacherDashboard {
		return TeacherSession{}, ErrBusy
	}
	return ts, nil
}
