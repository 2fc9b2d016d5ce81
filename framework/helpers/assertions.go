package helpers

import (
	"time"
)

// PollUntil evaluates condition every interval until it returns true or timeout elapses.
// It reports whether the condition was met. The first evaluation happens after one
// interval, so callers that want an immediate check should make it themselves.
func PollUntil(condition func() bool, timeout, interval time.Duration) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-deadline.C:
			return false
		case <-ticker.C:
			if condition() {
				return true
			}
		}
	}
}

// AssertEventually polls condition like PollUntil and records a failure on t if it never
// became true. Unlike assert.Eventually it runs on the calling goroutine, so it can be used
// with a TestRecorder.
func AssertEventually(
	t TestContext,
	condition func() bool,
	timeout time.Duration,
	interval time.Duration,
	failureMsgFormat string,
	failureMsgArgs ...interface{},
) bool {
	t.Helper()
	if PollUntil(condition, timeout, interval) {
		return true
	}
	t.Errorf(failureMsgFormat, failureMsgArgs...)
	return false
}

// RequireEventually is AssertEventually followed by t.FailNow on failure.
func RequireEventually(
	t TestContext,
	condition func() bool,
	timeout time.Duration,
	interval time.Duration,
	failureMsgFormat string,
	failureMsgArgs ...interface{},
) {
	t.Helper()
	if !AssertEventually(t, condition, timeout, interval, failureMsgFormat, failureMsgArgs...) {
		t.FailNow()
	}
}
