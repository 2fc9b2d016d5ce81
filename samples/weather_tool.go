package samples

import (
	"context"
	"time"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
	"github.com/Nuvalence/kinesis-quality-toolkit/inputs"
	"github.com/Nuvalence/kinesis-quality-toolkit/kda"
	"github.com/Nuvalence/kinesis-quality-toolkit/kdaerrors"
	"github.com/Nuvalence/kinesis-quality-toolkit/qualitytool"
)

const (
	// OutputStreamName is the sample application's output.
	OutputStreamName = "OUTPUT_STREAM"
	// DefaultOutputTimeout is how long WeatherTool waits for outputs to match.
	DefaultOutputTimeout = 30 * time.Second
)

// ErrorRegistry decodes the rows of input errors as InvalidWeatherSignals.
func ErrorRegistry() *kdaerrors.Registry {
	return kdaerrors.NewRegistry().Register(kdaerrors.InvalidInputPump, kdaerrors.JSONDataRow[InvalidWeatherSignal]())
}

// WeatherTool is a qualitytool.Tool specialized for the sample application. Its verifications
// wait up to OutputTimeout and report failures to a collector, so a scenario checks everything
// before failing.
type WeatherTool struct {
	*qualitytool.Tool
	OutputTimeout time.Duration
	t             helpers.TestContext
	collector     qualitytool.ErrorCollector
	lifecycle     *kda.LifecycleManager
}

func NewWeatherTool(
	t helpers.TestContext,
	tool *qualitytool.Tool,
	lifecycle *kda.LifecycleManager,
	collector qualitytool.ErrorCollector,
) *WeatherTool {
	return &WeatherTool{
		Tool:          tool,
		OutputTimeout: DefaultOutputTimeout,
		t:             t,
		collector:     collector,
		lifecycle:     lifecycle,
	}
}

// GivenRunningApplication starts the application if it is not running, failing the test if
// it cannot.
func (w *WeatherTool) GivenRunningApplication(ctx context.Context) {
	w.t.Helper()
	if err := w.lifecycle.EnsureRunning(ctx); err != nil {
		w.t.Errorf("application is not running: %s", err)
		w.t.FailNow()
	}
}

// Given writes signals to the input and checks that none were rejected.
func (w *WeatherTool) Given(signals []WeatherSignal) *qualitytool.InputSetup[WeatherSignal, *inputs.PutResult] {
	w.t.Helper()
	return qualitytool.TheInputStream[WeatherSignal](w.Tool).
		WithResponseHandler(func(result *inputs.PutResult) {
			if result.FailedRecordCount != 0 {
				w.t.Errorf("%d records were rejected at indexes %v", result.FailedRecordCount, result.FailedIndexes())
			}
		}).
		Given(signals)
}

// TheOutput returns a verification of OUTPUT_STREAM.
func (w *WeatherTool) TheOutput() *qualitytool.OutputVerification[ComputedTemperature] {
	return qualitytool.TheOutput[ComputedTemperature](w.Tool, OutputStreamName).
		Within(w.OutputTimeout).
		WhileContinuingOnErrors(w.collector)
}

// TheErrorOutput returns a verification of the error stream, decoding rows with ErrorRegistry.
func (w *WeatherTool) TheErrorOutput() *qualitytool.OutputVerification[kdaerrors.ErrorRecord] {
	return w.TheErrorOutputWith(ErrorRegistry()).WhileContinuingOnErrors(w.collector)
}

// ShouldHaveNoErrors checks that the error stream is empty so far.
func (w *WeatherTool) ShouldHaveNoErrors() {
	w.t.Helper()
	w.TheErrorOutput().Should("expected the application to have no errors", qualitytool.NoRecords())
}

// InvalidInputOf matches an input error whose row is signal.
func InvalidInputOf(signal InvalidWeatherSignal) m.Matcher {
	return m.AllOf(qualitytool.InvalidInputError(), qualitytool.ErrorDataRow(signal))
}
