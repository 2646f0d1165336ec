package portal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/mahudhurio/apps/api/echo"
	"github.com/trezcool/mahudhurio/apps/shared"
	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	inmemdb "github.com/trezcool/mahudhurio/storage/database/inmem"
)

const testDate = "2024-03-01"

// testEnv is the real API server, over in-memory repositories holding the seed data.
type testEnv struct {
	url        string
	usrRepo    user.Repository
	schoolRepo school.Repository
	usrSvc     user.Service
	schoolSvc  school.Service
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
}

func newValidation() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	school.InitValidators(validate, translator)
	return validate, translator
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	validate, translator := newValidation()

	mem := inmemdb.New()
	usrRepo := inmemdb.NewUserRepository(mem)
	schoolRepo := inmemdb.NewSchoolRepository(mem)
	usrSvc := user.NewService(usrRepo)
	schoolSvc := school.NewService(schoolRepo, schoolRepo, emailsvc.NewConsoleServiceMock(conf, logger), logger, school.Options{})

	if _, err := shared.Seed(context.Background(), usrSvc, schoolSvc, logger); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		SchoolSvc:  schoolSvc,
		Validate:   validate,
		Translator: translator,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})

	return &testEnv{
		url:        ts.URL,
		usrRepo:    usrRepo,
		schoolRepo: schoolRepo,
		usrSvc:     usrSvc,
		schoolSvc:  schoolSvc,
		validate:   validate,
		translator: translator,
		logger:     logger,
	}
}

func (env *testEnv) requester() *interceptRequester {
	return &interceptRequester{Requester: NewHTTPRequester(env.url, 5*time.Second)}
}

func (env *testEnv) client(req Requester, store TokenStore) *Client {
	return NewClient(req, store, env.validate, env.translator, env.logger)
}

func (env *testEnv) dashboard(req Requester, store TokenStore, opts ...DashboardOption) *Dashboard {
	opts = append([]DashboardOption{WithToday(func() string { return testDate })}, opts...)
	return NewDashboard(env.client(req, store), env.logger, opts...)
}

// teacherSession logs the default teacher in through client.
func (env *testEnv) teacherSession(t *testing.T, client *Client) TeacherSession {
	t.Helper()
	sess, err := client.Sessions.Login(context.Background(), shared.DefaultTeacherUsername, shared.DefaultTeacherPassword)
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	ts, err := sess.AsTeacher()
	if err != nil {
		t.Fatalf("AsTeacher() failed: %v", err)
	}
	return ts
}

// class returns the seeded class named name.
func (env *testEnv) class(t *testing.T, name string) school.Class {
	t.Helper()
	teacher, err := env.usrSvc.GetByUsername(context.Background(), shared.DefaultTeacherUsername)
	if err != nil {
		t.Fatalf("GetByUsername() failed: %v", err)
	}
	classes, err := env.schoolSvc.Classes(context.Background(), teacher)
	if err != nil {
		t.Fatalf("Classes() failed: %v", err)
	}
	for _, cls := range classes {
		if cls.Name == name {
			return cls
		}
	}
	t.Fatalf("class %q not found", name)
	return school.Class{}
}

// interceptRequester records every call and lets a test fail or block some of them.
type interceptRequester struct {
	Requester

	mu        sync.Mutex
	calls     []string
	intercept func(method, path string) error
}

func (r *interceptRequester) Do(ctx context.Context, method, path, token string, body, out interface{}) error {
	r.mu.Lock()
	r.calls = append(r.calls, method+" "+path)
	fn := r.intercept
	r.mu.Unlock()

	if fn != nil {
		if err := fn(method, path); err != nil {
			return err
		}
	}
	return r.Requester.Do(ctx, method, path, token, body, out)
}

func (r *interceptRequester) setIntercept(fn func(method, path string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intercept = fn
}

func (r *interceptRequester) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

func (r *interceptRequester) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// fakeRequester answers every call with handle, without any network.
type fakeRequester struct {
	mu     sync.Mutex
	calls  []string
	bodies []interface{}
	handle func(method, path string, body interface{}) (interface{}, error)
}

func (f *fakeRequester) Do(_ context.Context, method, path, _ string, body, out interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+path)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	if f.handle == nil {
		return nil
	}
	resp, err := f.handle(method, path, body)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeRequester) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
