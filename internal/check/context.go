// Package check is a contract suite for Riddler registries. It runs the
// registry's observable properties as named checks against any
// types.Registry, local or remote, and reports each result.
package check

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

type environment struct {
	ctx     context.Context
	results Results
	logger  Logger
}

// T is the context one check runs in. It satisfies testify's TestingT and
// require's FailNow, so checks use assert and require directly.
type T struct {
	env        *environment
	id         TestID
	failed     bool
	skipped    bool
	skipReason string
	errors     []error
	cleanups   []func()
}

// run executes action with t as its context, recovering from FailNow and
// from unexpected panics.
func (t *T) run(action func(*T)) {
	defer func() {
		if r := recover(); r != nil {
			if t.skipped {
				return
			}
			t.failed = true
			var err error
			if _, ok := r.(*T); ok {
				if len(t.errors) == 0 {
					err = errors.New("check failed with no failure message")
				}
			} else {
				err = fmt.Errorf("unexpected panic in check: %+v\n%s", r, debug.Stack())
			}
			if err != nil {
				t.errors = append(t.errors, err)
				t.env.logger.CheckError(t.id, err)
			}
		}
	}()
	defer t.runCleanups()

	action(t)
}

func (t *T) runCleanups() {
	for i := len(t.cleanups) - 1; i >= 0; i-- {
		t.cleanups[i]()
	}
}

// ID returns the check's path.
func (t *T) ID() TestID {
	return t.id
}

// Context returns the context registry calls should use.
func (t *T) Context() context.Context {
	return t.env.ctx
}

// Run runs a nested check named name.
func (t *T) Run(name string, action func(*T)) {
	t.runChild(t.id.Child(name), action)
}

func (t *T) runChild(id TestID, action func(*T)) {
	if err := t.env.ctx.Err(); err != nil {
		t.env.results.add(TestResult{TestID: id, Skipped: true})
		t.env.logger.CheckSkipped(id, err.Error())
		return
	}

	t.env.logger.CheckStarted(id)
	child := &T{env: t.env, id: id}
	child.run(action)

	t.env.results.add(TestResult{TestID: id, Errors: child.errors, Skipped: child.skipped})
	if child.skipped {
		t.env.logger.CheckSkipped(id, child.skipReason)
	} else {
		t.env.logger.CheckFinished(id, child.failed)
	}
	if child.failed {
		t.failed = true
	}
}

// Errorf records a failure and lets the check continue.
func (t *T) Errorf(format string, args ...any) {
	t.failed = true
	err := fmt.Errorf(format, args...)
	t.errors = append(t.errors, err)
	t.env.logger.CheckError(t.id, reformat(err))
}

// FailNow stops the check.
func (t *T) FailNow() {
	panic(t)
}

// Skipf stops the check and reports it as skipped.
func (t *T) Skipf(format string, args ...any) {
	t.skipped = true
	t.skipReason = fmt.Sprintf(format, args...)
	panic(t)
}

// Cleanup registers fn to run when the check finishes.
func (t *T) Cleanup(fn func()) {
	t.cleanups = append(t.cleanups, fn)
}

// Helper is a no-op; it lets helpers share signatures with testing.T.
func (t *T) Helper() {}

// reformat trims the leading whitespace testify puts on failure text.
func reformat(err error) error {
	lines := strings.Split(err.Error(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeft(line, "\t ")
	}
	return errors.New(strings.TrimSpace(strings.Join(lines, "\n")))
}
