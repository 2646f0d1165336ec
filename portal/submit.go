package portal

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

// Ack is the server's answer to a successful submission.
type Ack struct {
	Message string `json:"message"`
	Records int    `json:"records"`
}

// Submitter sends the attendance of a class on a day. The server replaces the whole day: last write wins.
type Submitter struct {
	req        Requester
	validate   *validator.Validate
	translator ut.Translator
}

// NewSubmitter expects validate to have the core and school validators registered.
func NewSubmitter(req Requester, validate *validator.Validate, translator ut.Translator) *Submitter {
	vala.BeginValidation().Validate(
		vala.IsNotNil(req, "req"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
	).CheckAndPanic()

	return &Submitter{req: req, validate: validate, translator: translator}
}

// Submit validates the request locally (no network call on failure) and then sends it in a single POST.
// attendance is left untouched whatever the outcome.
func (s *Submitter) Submit(ctx context.Context, ts TeacherSession, classID, date string, attendance AttendanceMap) (Ack, error) {
	ma := school.MarkAttendance{
		ClassID: classID,
		Date:    date,
		Entries: attendance.Entries(),
	}
	if err := ma.Validate(s.validate); err != nil {
		return Ack{}, core.TranslateErrors(err, s.translator)
	}

	var ack Ack
	if err := s.req.Do(ctx, http.MethodPost, "/api/attendance", ts.Token, ma, &ack); err != nil {
		return Ack{}, err
	}
	return ack, nil
}
