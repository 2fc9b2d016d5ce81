package helpers

import (
	"errors"
	"fmt"
	"strings"
)

// TestContext is a minimal interface for types like *testing.T representing a test that can
// fail. Functions can use this to avoid a specific dependency on the testing package.
type TestContext interface {
	Errorf(msgFormat string, msgArgs ...interface{})
	FailNow()
	Helper()
}

// TestRecorder is a TestContext that only records failures. It is used to evaluate an
// assertion tentatively, for instance while waiting for an output stream to catch up, and
// only report the failures if the final attempt still fails.
type TestRecorder struct {
	Errors           []string
	Terminated       bool
	PanicOnTerminate bool
}

// TestRecorderTerminated is the value passed to panic by FailNow when PanicOnTerminate is set.
type TestRecorderTerminated struct{}

func (r *TestRecorder) Errorf(msgFormat string, msgArgs ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(msgFormat, msgArgs...))
}

func (r *TestRecorder) FailNow() {
	r.Terminated = true
	if r.PanicOnTerminate {
		panic(TestRecorderTerminated{})
	}
}

func (r *TestRecorder) Helper() {}

// Failed returns true if any error was recorded or FailNow was called.
func (r *TestRecorder) Failed() bool {
	return len(r.Errors) != 0 || r.Terminated
}

// Err returns all recorded errors combined into one error, or nil if there were none.
func (r *TestRecorder) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return errors.New(strings.Join(r.Errors, ", "))
}

// Run calls action with the recorder, absorbing the panic raised by FailNow when
// PanicOnTerminate is set. Any other panic is propagated.
func (r *TestRecorder) Run(action func(TestContext)) {
	defer func() {
		if e := recover(); e != nil {
			if _, ok := e.(TestRecorderTerminated); !ok {
				panic(e)
			}
		}
	}()
	action(r)
}

// ReplayTo reports every recorded error to t. It returns true if anything was reported.
func (r *TestRecorder) ReplayTo(t interface {
	Errorf(msgFormat string, msgArgs ...interface{})
}) bool {
	for _, e := range r.Errors {
		t.Errorf("%s", e)
	}
	if r.Terminated && len(r.Errors) == 0 {
		t.Errorf("test action terminated without a message")
		return true
	}
	return r.Failed()
}
