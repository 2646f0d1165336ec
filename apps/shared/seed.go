// Package shared holds the bits used by more than one app.
package shared

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
)

const (
	DefaultTeacherUsername = "teacher1"
	DefaultTeacherPassword = "password123"
	DefaultStudentPassword = "student123"
)

type seedStudent struct {
	code, name, email string
}

var (
	seedClasses = []school.Class{
		{Name: "Math 101", Grade: "Grade 10"},
		{Name: "Science 101", Grade: "Grade 10"},
		{Name: "English 101", Grade: "Grade 9"},
	}

	// all enrolled in the first class
	seedStudents = []seedStudent{
		{"ST001", "John Smith", "john@student.com"},
		{"ST002", "Emma Johnson", "emma@student.com"},
		{"ST003", "Michael Brown", "michael@student.com"},
		{"ST004", "Sophia Davis", "sophia@student.com"},
		{"ST005", "William Wilson", "william@student.com"},
		{"ST006", "Olivia Miller", "olivia@student.com"},
	}
)

// Seed creates the demo data: one teacher, three classes and six students (each with a login).
// It does nothing and returns false when the default teacher already exists.
func Seed(ctx context.Context, usrSvc user.Service, schoolSvc school.Service, logger core.Logger) (bool, error) {
	if _, err := usrSvc.GetByUsername(ctx, DefaultTeacherUsername); err == nil {
		return false, nil
	} else if errors.Cause(err) != user.ErrNotFound {
		return false, errors.Wrap(err, "finding default teacher")
	}

	teacher, err := usrSvc.Create(ctx, user.NewUser{
		Name:     "Ms. Sarah Johnson",
		Username: DefaultTeacherUsername,
		Email:    "teacher@school.com",
		Role:     user.RoleTeacher,
		Password: DefaultTeacherPassword,
	})
	if err != nil {
		return false, errors.Wrap(err, "creating default teacher")
	}
	logger.Info(fmt.Sprintf("seed: created teacher %q", teacher.Username))

	classes := make([]school.Class, 0, len(seedClasses))
	for _, cls := range seedClasses {
		cls.TeacherID = teacher.ID
		created, err := schoolSvc.CreateClass(ctx, cls)
		if err != nil {
			return false, errors.Wrapf(err, "creating class %q", cls.Name)
		}
		classes = append(classes, created)
	}

	for i, s := range seedStudents {
		std, err := schoolSvc.CreateStudent(ctx, school.Student{
			Code:          s.code,
			Name:          s.name,
			ClassID:       classes[0].ID,
			Email:         s.email,
			ParentContact: fmt.Sprintf("+1234567890%d", i),
		})
		if err != nil {
			return false, errors.Wrapf(err, "creating student %q", s.code)
		}
		_, err = usrSvc.Create(ctx, user.NewUser{
			Name:      s.name,
			Username:  strings.ToLower(s.code),
			Email:     s.email,
			Role:      user.RoleStudent,
			StudentID: std.ID,
			Password:  DefaultStudentPassword,
		})
		if err != nil {
			return false, errors.Wrapf(err, "creating login of student %q", s.code)
		}
	}
	logger.Info(fmt.Sprintf("seed: created %d classes and %d students", len(classes), len(seedStudents)))
	return true, nil
}
