package helpers

import (
	"time"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/opt"
)

// TryReceive waits up to timeout for a value from ch.
func TryReceive[V any](ch <-chan V, timeout time.Duration) opt.Maybe[V] {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value := <-ch:
		return opt.Some(value)
	case <-timer.C:
		return opt.None[V]()
	}
}

// RequireValue receives a value from ch, failing the test immediately if none arrives
// within timeout. A closed channel counts as a received zero value, which makes it useful
// for waiting on Done channels.
func RequireValue[V any](t TestContext, ch <-chan V, timeout time.Duration) V {
	t.Helper()
	var zero V
	return RequireValueWithMessage(t, ch, timeout, "no %T received within %s", zero, timeout)
}

// RequireValueWithMessage is RequireValue with a custom failure message.
func RequireValueWithMessage[V any](
	t TestContext,
	ch <-chan V,
	timeout time.Duration,
	msgFormat string,
	msgArgs ...interface{},
) V {
	t.Helper()
	received := TryReceive(ch, timeout)
	if !received.IsDefined() {
		t.Errorf(msgFormat, msgArgs...)
		t.FailNow()
	}
	return received.Value()
}
