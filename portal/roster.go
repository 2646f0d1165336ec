package portal

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kat-co/vala"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

// RosterLoader fetches classes and their students. Nothing is cached.
type RosterLoader struct {
	req Requester
}

func NewRosterLoader(req Requester) *RosterLoader {
	vala.BeginValidation().Validate(
		vala.IsNotNil(req, "req"),
	).CheckAndPanic()

	return &RosterLoader{req: req}
}

func (l *RosterLoader) Classes(ctx context.Context, sess *Session) ([]school.Class, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	classes := make([]school.Class, 0)
	if err := l.req.Do(ctx, http.MethodGet, "/api/classes", sess.Token, nil, &classes); err != nil {
		return nil, err
	}
	return classes, nil
}

// Load returns the students of classID, in the order the server sends them.
func (l *RosterLoader) Load(ctx context.Context, ts TeacherSession, classID string) ([]school.Student, error) {
	classID = core.CleanString(classID)
	if classID == "" {
		return nil, requiredField("class_id")
	}
	roster := make([]school.Student, 0)
	path := "/api/classes/" + url.PathEscape(classID) + "/students"
	if err := l.req.Do(ctx, http.MethodGet, path, ts.Token, nil, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}
