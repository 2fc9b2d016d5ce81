package qualitytool

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics/types"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	m "github.com/launchdarkly/go-test-helpers/v2/matchers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
	"github.com/Nuvalence/kinesis-quality-toolkit/inputs"
	"github.com/Nuvalence/kinesis-quality-toolkit/kda"
	"github.com/Nuvalence/kinesis-quality-toolkit/kdaerrors"
	"github.com/Nuvalence/kinesis-quality-toolkit/mockaws"
	"github.com/Nuvalence/kinesis-quality-toolkit/outputs"
	"github.com/Nuvalence/kinesis-quality-toolkit/resources"
)

const (
	appName      = "weather-app"
	inputStream  = "weather-in"
	outputStream = "weather-out"
	errorStream  = "weather-errors"
)

type reading struct {
	Station string  `json:"STATION"`
	Value   float64 `json:"VALUE"`
}

type invalidRow struct {
	UTCTime  int64  `json:"UTC_TIME"`
	IntValue string `json:"INT_VALUE"`
}

type testEnv struct {
	kinesis *mockaws.KinesisService
	client  *kinesis.Client
	io      *kda.IOProvider
	logger  ldlog.Loggers
}

func (e testEnv) newTool(t helpers.TestContext, options ...ToolOption) *Tool {
	defaults := []ToolOption{
		ReadersFrom(outputs.NewKinesisReaderProvider(e.client, outputs.SourceRateLimit(rate.Inf, 1))),
		OutputOptions(outputs.RefreshInterval(20 * time.Millisecond)),
		VerifyInterval(10 * time.Millisecond),
		ToolLogger(e.logger.ForLevel(ldlog.Debug)),
	}
	tool, err := New(t, e.io, e.client, append(defaults, options...)...)
	if err != nil {
		panic(err)
	}
	return tool
}

func (e testEnv) addOutput(arrival time.Time, values ...interface{}) {
	for _, v := range values {
		data, _ := json.Marshal(v)
		e.kinesis.AddRecordsAt(outputStream, 0, arrival, data)
	}
}

func withEnv(t *testing.T, action func(env testEnv)) {
	testLog := ldlogtest.NewMockLog()
	testLog.Loggers.SetMinLevel(ldlog.Debug)
	defer testLog.DumpIfTestFailed(t)

	kinesisService := mockaws.NewKinesisService(testLog.Loggers.ForLevel(ldlog.Debug))
	kinesisService.CreateStream(inputStream, 1)
	kinesisService.CreateStream(outputStream, 2)
	kinesisService.CreateStream(errorStream, 1)

	analyticsService := mockaws.NewAnalyticsService(testLog.Loggers.ForLevel(ldlog.Debug))
	analyticsService.AddApplication(mockaws.MockApplication{
		Name:   appName,
		Status: types.ApplicationStatusRunning,
		Inputs: []mockaws.MockInput{{ID: "1.1", NamePrefix: "SOURCE_SQL_STREAM", ResourceARN: mockaws.StreamARN(inputStream)}},
		Outputs: []mockaws.MockOutput{
			{ID: "1.1", Name: "OUTPUT_STREAM", ResourceARN: mockaws.StreamARN(outputStream)},
			{ID: "1.2", Name: kdaerrors.ErrorStreamName, ResourceARN: mockaws.StreamARN(errorStream)},
		},
	})

	httphelpers.WithServer(kinesisService, func(kinesisServer *httptest.Server) {
		httphelpers.WithServer(analyticsService, func(analyticsServer *httptest.Server) {
			analytics := kinesisanalytics.NewFromConfig(mockaws.NewAWSConfig(analyticsServer.URL))
			action(testEnv{
				kinesis: kinesisService,
				client:  kinesis.NewFromConfig(mockaws.NewAWSConfig(kinesisServer.URL)),
				io:      kda.NewIOProvider(kda.NewApplicationSource(analytics, appName)),
				logger:  testLog.Loggers,
			})
		})
	})
}

// runRecorded runs action with a TestContext that records failures instead of failing t.
func runRecorded(action func(t helpers.TestContext)) *helpers.TestRecorder {
	recorder := &helpers.TestRecorder{PanicOnTerminate: true}
	recorder.Run(action)
	return recorder
}

func TestGivenWritesJSONToInputStream(t *testing.T) {
	withEnv(t, func(env testEnv) {
		tool := env.newTool(t)
		records := []reading{{Station: "a", Value: 1.5}, {Station: "b", Value: 2}}

		var response *inputs.PutResult
		TheInputStream[reading](tool).
			WithResponseHandler(func(r *inputs.PutResult) { response = r }).
			Given(records)

		require.NotNil(t, response)
		assert.Equal(t, 0, response.FailedRecordCount)
		assert.Len(t, response.Records, 2)

		written := env.kinesis.Records(inputStream)
		require.Len(t, written, 2)
		assert.JSONEq(t, `{"STATION":"a","VALUE":1.5}`, string(written[0]))
		assert.JSONEq(t, `{"STATION":"b","VALUE":2}`, string(written[1]))
		assert.Equal(t, []string{inputs.DefaultPartitionKey, inputs.DefaultPartitionKey}, env.kinesis.PartitionKeys(inputStream))
	})
}

type failingWriterProvider struct{}

func (failingWriterProvider) WriterFor(resources.AwsResource) (inputs.Writer[string, string], error) {
	return nil, errors.New("no writer for you")
}

func TestGivenFailsTestWhenInputCannotBeWritten(t *testing.T) {
	withEnv(t, func(env testEnv) {
		recorder := runRecorded(func(rt helpers.TestContext) {
			tool := env.newTool(rt)
			defer tool.Close()
			TheInput[string, string](tool, failingWriterProvider{}).Given([]string{"x"})
		})
		assert.True(t, recorder.Terminated)
		assert.Contains(t, recorder.Err().Error(), "no writer for you")
	})
}

func TestThenWaitStopsWhenContextIsDone(t *testing.T) {
	withEnv(t, func(env testEnv) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		recorder := runRecorded(func(rt helpers.TestContext) {
			tool := env.newTool(rt, WithContext(ctx))
			defer tool.Close()
			TheInputStream[reading](tool).ThenWait(time.Hour)
		})
		assert.True(t, recorder.Terminated)

		tool := env.newTool(t)
		start := time.Now()
		TheInputStream[reading](tool).ThenWait(20 * time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})
}

func TestOutputShouldPassAgainstRecordsAlreadyAccumulated(t *testing.T) {
	withEnv(t, func(env testEnv) {
		env.addOutput(time.Now(), reading{Station: "a", Value: 1}, reading{Station: "b", Value: 2})
		tool := env.newTool(t, StartTime(time.Now().Add(-time.Minute)))

		TheOutput[reading](tool, "OUTPUT_STREAM").
			Should("both readings", m.ItemsInAnyOrder(
				m.Equal(reading{Station: "a", Value: 1}),
				m.Equal(reading{Station: "b", Value: 2}),
			))
	})
}

func TestOutputWithinWaitsForRecordsToArrive(t *testing.T) {
	withEnv(t, func(env testEnv) {
		tool := env.newTool(t, StartTime(time.Now().Add(-time.Minute)))
		verification := TheOutput[reading](tool, "output_stream")

		go func() {
			time.Sleep(100 * time.Millisecond)
			env.addOutput(time.Now(), reading{Station: "late", Value: 3})
		}()

		verification.Within(5*time.Second).
			Should("late reading", m.Items(m.Equal(reading{Station: "late", Value: 3})))
	})
}

func TestOutputReadsOnlyRecordsSinceToolCreation(t *testing.T) {
	withEnv(t, func(env testEnv) {
		env.addOutput(time.Now().Add(-time.Hour), reading{Station: "old"})
		tool := env.newTool(t)
		env.addOutput(time.Now().Add(time.Second), reading{Station: "new"})

		TheOutput[reading](tool, "OUTPUT_STREAM").
			Within(5*time.Second).
			Should("only new readings", m.Items(m.Equal(reading{Station: "new"})))
	})
}

func TestOutputFailureFailsTestAfterDeadline(t *testing.T) {
	withEnv(t, func(env testEnv) {
		var elapsed time.Duration
		recorder := runRecorded(func(rt helpers.TestContext) {
			tool := env.newTool(rt)
			defer tool.Close()
			start := time.Now()
			defer func() { elapsed = time.Since(start) }()
			TheOutput[reading](tool, "OUTPUT_STREAM").
				Within(200*time.Millisecond).
				Should("one reading", m.Length().Should(m.Equal(1)))
		})
		assert.True(t, recorder.Terminated)
		assert.NotEmpty(t, recorder.Errors)
		assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	})
}

func TestOutputFailuresGoToCollector(t *testing.T) {
	withEnv(t, func(env testEnv) {
		env.addOutput(time.Now(), reading{Station: "a"})
		tool := env.newTool(t, StartTime(time.Now().Add(-time.Minute)))
		collector := &helpers.TestRecorder{}

		TheOutput[reading](tool, "OUTPUT_STREAM").
			WhileContinuingOnErrors(collector).
			Should("no readings", NoRecords()).
			Should("one reading", m.Length().Should(m.Equal(1))).
			ShouldSatisfy(func(t helpers.TestContext, records []reading) {
				t.Errorf("custom failure with %d records", len(records))
				t.FailNow()
				t.Errorf("not reached")
			})

		assert.False(t, collector.Terminated)
		require.Len(t, collector.Errors, 2)
		assert.Equal(t, "custom failure with 1 records", collector.Errors[1])
	})
}

func TestUnknownOutputFailsVerification(t *testing.T) {
	withEnv(t, func(env testEnv) {
		recorder := runRecorded(func(rt helpers.TestContext) {
			tool := env.newTool(rt)
			defer tool.Close()
			TheOutput[reading](tool, "NOPE").Should("anything", NoRecords())
		})
		assert.True(t, recorder.Terminated)
		assert.Contains(t, recorder.Err().Error(), `"NOPE"`)
	})
}

func TestNewRejectsNonPositiveVerifyInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Millisecond} {
		t.Run(interval.String(), func(t *testing.T) {
			tool, err := New(&helpers.TestRecorder{}, nil, nil, VerifyInterval(interval))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "verify interval must be positive")
			assert.Nil(t, tool)
		})
	}
}

func TestInvalidRefreshIntervalFailsVerification(t *testing.T) {
	withEnv(t, func(env testEnv) {
		recorder := runRecorded(func(rt helpers.TestContext) {
			tool := env.newTool(rt, OutputOptions(outputs.RefreshInterval(0)))
			defer tool.Close()
			TheOutput[reading](tool, "OUTPUT_STREAM").Should("anything", NoRecords())
		})
		assert.True(t, recorder.Terminated)
		assert.Contains(t, recorder.Err().Error(), "refresh interval must be positive")
	})
}

func TestErrorOutputDecodesInvalidInputRows(t *testing.T) {
	withEnv(t, func(env testEnv) {
		row := `{"UTC_TIME":1560885836923,"INT_VALUE":"a"}`
		envelope := `{"ERROR_TIME":"2019-06-18 19:23:59.393","ERROR_LEVEL":"Error","ERROR_NAME":"Data conversion error",` +
			`"MESSAGE":"bad","DATA_ROWTIME":"2019-06-18 19:23:56.923","DATA_ROW":"` +
			hex.EncodeToString([]byte(row)) + `","PUMP_NAME":"null"}`
		env.kinesis.AddRecordsAt(errorStream, 0, time.Now(), []byte(envelope))
		tool := env.newTool(t, StartTime(time.Now().Add(-time.Minute)))

		registry := kdaerrors.NewRegistry().Register(kdaerrors.InvalidInputPump, kdaerrors.JSONDataRow[invalidRow]())
		tool.TheErrorOutputWith(registry).
			Within(time.Second).
			Should("invalid input is reported", m.Items(m.AllOf(
				InvalidInputError(),
				ErrorDataRow(invalidRow{UTCTime: 1560885836923, IntValue: "a"}),
			)))

		tool.TheErrorOutput().
			Should("raw row without a registry", m.Items(ErrorDataRow(row)))
	})
}

func TestCloseStopsOpenedOutputs(t *testing.T) {
	withEnv(t, func(env testEnv) {
		tool := env.newTool(t)
		verification := TheOutput[reading](tool, "OUTPUT_STREAM")
		cache := verification.output.(*outputs.OutputCache[reading])

		tool.Close()
		helpers.RequireValue(t, cache.Done(), time.Second)
		tool.Close()
	})
}

func TestErrorRecordMatchers(t *testing.T) {
	rec := kdaerrors.ErrorRecord{PumpName: "STREAM_PUMP", DataRow: "row"}

	m.In(t).Assert(rec, ErrorDataRow("row"))
	m.In(t).Assert(&rec, FromPump("STREAM_PUMP"))
	m.In(t).Assert(rec, m.Not(InvalidInputError()))
	m.In(t).Assert(kdaerrors.ErrorRecord{}, InvalidInputError())

	pass, _ := ErrorDataRow("row").Test("not a record")
	assert.False(t, pass)
}
