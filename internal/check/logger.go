package check

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Logger receives check progress.
type Logger interface {
	CheckStarted(id TestID)
	CheckError(id TestID, err error)
	CheckFinished(id TestID, failed bool)
	CheckSkipped(id TestID, reason string)
}

type nullLogger struct{}

func (nullLogger) CheckStarted(TestID)         {}
func (nullLogger) CheckError(TestID, error)    {}
func (nullLogger) CheckFinished(TestID, bool)  {}
func (nullLogger) CheckSkipped(TestID, string) {}

// ConsoleLogger prints one line per check with a colored status.
type ConsoleLogger struct {
	Out     io.Writer
	Verbose bool

	pass *color.Color
	fail *color.Color
	skip *color.Color
}

// NewConsoleLogger writes to out. Color follows fatih/color's terminal
// detection unless noColor is set.
func NewConsoleLogger(out io.Writer, verbose, noColor bool) *ConsoleLogger {
	l := &ConsoleLogger{
		Out:     out,
		Verbose: verbose,
		pass:    color.New(color.FgGreen),
		fail:    color.New(color.FgRed, color.Bold),
		skip:    color.New(color.FgYellow),
	}
	if noColor {
		l.pass.DisableColor()
		l.fail.DisableColor()
		l.skip.DisableColor()
	}
	return l
}

func (l *ConsoleLogger) CheckStarted(id TestID) {
	if l.Verbose {
		fmt.Fprintf(l.Out, "[%s]\n", id)
	}
}

func (l *ConsoleLogger) CheckError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(l.Out, "    %s\n", line)
	}
}

func (l *ConsoleLogger) CheckFinished(id TestID, failed bool) {
	if failed {
		l.fail.Fprintf(l.Out, "FAIL")
	} else {
		l.pass.Fprintf(l.Out, "PASS")
	}
	fmt.Fprintf(l.Out, " %s\n", id)
}

func (l *ConsoleLogger) CheckSkipped(id TestID, reason string) {
	l.skip.Fprintf(l.Out, "SKIP")
	if reason == "" {
		fmt.Fprintf(l.Out, " %s\n", id)
	} else {
		fmt.Fprintf(l.Out, " %s (%s)\n", id, reason)
	}
}

// Summary prints the totals line.
func (l *ConsoleLogger) Summary(r Results) {
	passed, failed, skipped := r.Counts()
	c := l.pass
	if failed > 0 {
		c = l.fail
	}
	c.Fprintf(l.Out, "%d passed, %d failed, %d skipped\n", passed, failed, skipped)
}
