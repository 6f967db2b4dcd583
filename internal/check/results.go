package check

import (
	"fmt"
	"strings"
)

// TestID is the slash-separated path of a check, such as
// "dictionary/create then get".
type TestID struct {
	Path []string
}

func (id TestID) String() string {
	return strings.Join(id.Path, "/")
}

// Child returns the id of a nested check.
func (id TestID) Child(name string) TestID {
	path := make([]string, len(id.Path), len(id.Path)+1)
	copy(path, id.Path)
	return TestID{Path: append(path, name)}
}

// TestResult is the outcome of one check.
type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

// Failed reports whether the check recorded errors.
func (r TestResult) Failed() bool {
	return len(r.Errors) > 0
}

// Results collects every check run.
type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

func (r *Results) add(result TestResult) {
	r.Tests = append(r.Tests, result)
	if result.Failed() {
		r.Failures = append(r.Failures, result)
	}
}

// OK reports whether no check failed.
func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Counts returns passed, failed, and skipped totals for leaf checks.
func (r Results) Counts() (passed, failed, skipped int) {
	for _, res := range r.Tests {
		switch {
		case res.Skipped:
			skipped++
		case res.Failed():
			failed++
		default:
			passed++
		}
	}
	return passed, failed, skipped
}

// Failure is one failed check, usable as an error.
type Failure struct {
	ID  TestID
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}
