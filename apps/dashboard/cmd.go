package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/portal"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	dash *portal.Dashboard
	out  io.Writer
}

// editFlags collects the repeated -set flags.
type editFlags []string

func (f *editFlags) String() string { return strings.Join(*f, ",") }

func (f *editFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// edit is a parsed -set flag: CODE=status[:notes].
type edit struct {
	code   string
	status string
	notes  *string
}

func parseEdit(s string) (edit, error) {
	code, rest, ok := strings.Cut(s, "=")
	code = core.CleanString(code)
	if !ok || code == "" || strings.TrimSpace(rest) == "" {
		return edit{}, fmt.Errorf("invalid edit %q: want CODE=status[:notes]", s)
	}
	status, notes, hasNotes := strings.Cut(rest, ":")
	e := edit{code: strings.ToUpper(code), status: core.CleanString(status, true /* lower */)}
	if hasNotes {
		notes = strings.TrimSpace(notes)
		e.notes = &notes
	}
	return e, nil
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -username USERNAME - log in (the password is prompted)")
	fmt.Fprintln(cli.out, "  logout - log out and forget the stored token")
	fmt.Fprintln(cli.out, "  show - show the dashboard of the logged in user")
	fmt.Fprintf(cli.out, "  mark -class CLASS [-date YYYY-MM-DD] [-set CODE=%s[:notes]]... - show the attendance of a class (by ID or name) and submit the given changes\n", school.StatusChoices("|"))
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	loginCmd := flag.NewFlagSet("login", flag.ContinueOnError)
	loginCmd.SetOutput(cli.out)
	loginUname := loginCmd.String("username", "", "The username. The password will be prompted next.")

	markCmd := flag.NewFlagSet("mark", flag.ContinueOnError)
	markCmd.SetOutput(cli.out)
	markClass := markCmd.String("class", "", "The ID or the name of the class.")
	markDate := markCmd.String("date", "", "The day to mark (YYYY-MM-DD). Defaults to today.")
	var markEdits editFlags
	markCmd.Var(&markEdits, "set", "A change: CODE="+school.StatusChoices("|")+"[:notes]. Repeatable.")

	switch args[1] {
	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loginUname == "" {
			loginCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		return cli.login(ctx, *loginUname, string(pwd))

	case "logout":
		return cli.logout()

	case "show":
		return cli.show(ctx)

	case "mark":
		if err := markCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *markClass == "" {
			markCmd.Usage()
			return errHelp
		}
		edits := make([]edit, 0, len(markEdits))
		for _, s := range markEdits {
			e, err := parseEdit(s)
			if err != nil {
				return err
			}
			edits = append(edits, e)
		}
		return cli.mark(ctx, *markClass, *markDate, edits)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) login(ctx context.Context, username, password string) error {
	err := cli.dash.Login(ctx, username, password)
	cli.render(cli.dash.Snapshot())
	return err
}

func (cli *commandLine) logout() error {
	err := cli.dash.Logout()
	cli.render(cli.dash.Snapshot())
	return err
}

// start restores the stored session; it fails with portal.ErrNoSession when there is none.
func (cli *commandLine) start(ctx context.Context) error {
	if err := cli.dash.Start(ctx); err != nil {
		cli.render(cli.dash.Snapshot())
		return err
	}
	if cli.dash.Snapshot().Session == nil {
		fmt.Fprintln(cli.out, "Not logged in. Run: login -username USERNAME")
		return portal.ErrNoSession
	}
	return nil
}

func (cli *commandLine) show(ctx context.Context) error {
	if err := cli.start(ctx); err != nil {
		return err
	}
	cli.render(cli.dash.Snapshot())
	return nil
}

func (cli *commandLine) mark(ctx context.Context, class, date string, edits []edit) error {
	if err := cli.start(ctx); err != nil {
		return err
	}

	classID, err := resolveClass(cli.dash.Snapshot().Classes, class)
	if err != nil {
		return err
	}
	if date != "" {
		if err := cli.dash.SelectDate(ctx, date); err != nil {
			return err
		}
	}
	if err := cli.dash.SelectClass(ctx, classID); err != nil {
		return err
	}

	if len(edits) > 0 {
		roster := cli.dash.Snapshot().Roster
		for _, e := range edits {
			studentID, err := resolveStudent(roster, e.code)
			if err != nil {
				return err
			}
			if err := cli.dash.Edit(studentID, portal.FieldStatus, e.status); err != nil {
				return err
			}
			if e.notes != nil {
				if err := cli.dash.Edit(studentID, portal.FieldNotes, *e.notes); err != nil {
					return err
				}
			}
		}
		if _, err := cli.dash.Submit(ctx); err != nil {
			cli.render(cli.dash.Snapshot())
			return err
		}
	}
	cli.render(cli.dash.Snapshot())
	return nil
}

func resolveClass(classes []school.Class, class string) (string, error) {
	class = core.CleanString(class)
	for _, cls := range classes {
		if cls.ID == class || strings.EqualFold(cls.Name, class) {
			return cls.ID, nil
		}
	}
	return "", fmt.Errorf("class %q not found", class)
}

func resolveStudent(roster []school.Student, code string) (string, error) {
	for _, std := range roster {
		if strings.EqualFold(std.Code, code) {
			return std.ID, nil
		}
	}
	return "", fmt.Errorf("student %q is not in this class", code)
}

func (cli *commandLine) render(snap portal.Snapshot) {
	if snap.Message.Text != "" {
		if snap.Message.Error {
			fmt.Fprintf(cli.out, "! %s\n", snap.Message.Text)
		} else {
			fmt.Fprintln(cli.out, snap.Message.Text)
		}
	}

	tw := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch portal.Route(snap) {
	case portal.ViewTeacher:
		fmt.Fprintf(tw, "\nWelcome, %s (teacher)\n\n", snap.Session.FullName)
		if st := snap.TeacherStats; st != nil {
			fmt.Fprintf(tw, "Total classes:\t%d\n", st.TotalClasses)
			fmt.Fprintf(tw, "Total students:\t%d\n", st.TotalStudents)
			fmt.Fprintf(tw, "Present today:\t%d\n", st.PresentToday)
			fmt.Fprintf(tw, "Absent today:\t%d\n", st.AbsentToday)
		}
		fmt.Fprintln(tw, "\nID\tCLASS\tGRADE")
		for _, cls := range snap.Classes {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", cls.ID, cls.Name, cls.Grade)
		}
		if snap.ClassID != "" && snap.Attendance != nil {
			fmt.Fprintf(tw, "\nAttendance of %s on %s\n", className(snap.Classes, snap.ClassID), snap.Date)
			fmt.Fprintln(tw, "CODE\tNAME\tSTATUS\tNOTES")
			for _, std := range snap.Roster {
				e := snap.Attendance[std.ID]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", std.Code, std.Name, e.Status, e.Notes)
			}
		}

	case portal.ViewStudent:
		fmt.Fprintf(tw, "\nWelcome, %s (student)\n\n", snap.Session.FullName)
		if sum := snap.Summary; sum != nil {
			fmt.Fprintf(tw, "Attendance percentage:\t%.1f%%\n", sum.Statistics.AttendancePercentage)
			fmt.Fprintf(tw, "Present days:\t%d\n", sum.Statistics.PresentDays)
			fmt.Fprintf(tw, "Late days:\t%d\n", sum.Statistics.LateDays)
			fmt.Fprintf(tw, "Absent days:\t%d\n", sum.Statistics.AbsentDays)
			fmt.Fprintln(tw, "\nDATE\tSTATUS\tNOTES")
			for _, r := range sum.Records {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Date, r.Status, r.Notes)
			}
		}
	}
}

func className(classes []school.Class, id string) string {
	for _, cls := range classes {
		if cls.ID == id {
			return cls.Name
		}
	}
	return id
}
