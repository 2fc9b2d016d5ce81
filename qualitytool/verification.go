package qualitytool

import (
	"time"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/opt"
)

// ErrorCollector receives verification failures instead of the test, so that the test keeps
// going after a failed verification.
type ErrorCollector interface {
	Errorf(msgFormat string, msgArgs ...interface{})
}

// RecordSource is anything that accumulates output records, such as an outputs.OutputCache.
type RecordSource[T any] interface {
	Records() []T
	Err() error
}

// OutputVerification makes assertions about the records accumulated from one output.
type OutputVerification[T any] struct {
	t         helpers.TestContext
	name      string
	output    RecordSource[T]
	err       error
	within    opt.Maybe[time.Duration]
	interval  time.Duration
	collector ErrorCollector
}

// Verify returns a verification of records from output. Tools create these with TheOutput;
// Verify is for outputs opened some other way.
func Verify[T any](t helpers.TestContext, name string, output RecordSource[T]) *OutputVerification[T] {
	return &OutputVerification[T]{t: t, name: name, output: output, interval: DefaultVerifyInterval}
}

// Within makes every later assertion keep re-checking the output until it passes or the
// timeout elapses. Without it, an assertion is checked once against the records accumulated
// so far.
func (v *OutputVerification[T]) Within(timeout time.Duration) *OutputVerification[T] {
	v.within = opt.Some(timeout)
	return v
}

// WhileContinuingOnErrors sends failures to collector instead of failing the test immediately.
func (v *OutputVerification[T]) WhileContinuingOnErrors(collector ErrorCollector) *OutputVerification[T] {
	v.collector = collector
	return v
}

// Should asserts that the accumulated records, as a []T, satisfy matcher.
func (v *OutputVerification[T]) Should(reason string, matcher m.Matcher) *OutputVerification[T] {
	v.t.Helper()
	return v.ShouldSatisfy(func(t helpers.TestContext, records []T) {
		m.In(t).For(reason).Assert(records, matcher)
	})
}

// ShouldSatisfy runs a free-form check against the accumulated records. The check reports
// failures through the TestContext it is given; it may call FailNow.
func (v *OutputVerification[T]) ShouldSatisfy(check func(t helpers.TestContext, records []T)) *OutputVerification[T] {
	v.t.Helper()
	if v.err != nil {
		v.report(recordedFailure("unable to read output %q: %s", v.name, v.err))
		return v
	}
	attempt := func() *helpers.TestRecorder {
		recorder := &helpers.TestRecorder{PanicOnTerminate: true}
		recorder.Run(func(t helpers.TestContext) { check(t, v.output.Records()) })
		return recorder
	}
	last := attempt()
	if timeout, ok := v.within.Get(); ok && last.Failed() {
		helpers.PollUntil(func() bool {
			last = attempt()
			return !last.Failed()
		}, timeout, v.interval)
	}
	if last.Failed() {
		if err := v.output.Err(); err != nil {
			last.Errorf("output %q last failed to refresh: %s", v.name, err)
		}
		v.report(last)
	}
	return v
}

func (v *OutputVerification[T]) report(failure *helpers.TestRecorder) {
	v.t.Helper()
	if v.collector != nil {
		failure.ReplayTo(v.collector)
		return
	}
	failure.ReplayTo(v.t)
	v.t.FailNow()
}

func recordedFailure(format string, args ...interface{}) *helpers.TestRecorder {
	recorder := &helpers.TestRecorder{}
	recorder.Errorf(format, args...)
	return recorder
}
