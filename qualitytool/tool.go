// Package qualitytool sets up and verifies scenarios against a running Kinesis Data Analytics
// application: records are written to the application's input, and assertions are made on
// what accumulates in its outputs.
//
// A Tool is bound to a test. Verification failures are reported to the test's Errorf and
// FailNow, so the same code works with *testing.T or any other helpers.TestContext.
package qualitytool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/opt"
	"github.com/Nuvalence/kinesis-quality-toolkit/inputs"
	"github.com/Nuvalence/kinesis-quality-toolkit/outputs"
	"github.com/Nuvalence/kinesis-quality-toolkit/resources"
)

// DefaultVerifyInterval is how often a verification with a deadline is re-evaluated.
const DefaultVerifyInterval = 250 * time.Millisecond

// IOProvider resolves the application's input and named outputs. *kda.IOProvider
// implements it.
type IOProvider interface {
	Input(ctx context.Context) (resources.AwsResource, error)
	Output(ctx context.Context, name string) (resources.AwsResource, error)
}

// Client is the subset of the Kinesis client used to write inputs and read outputs.
type Client interface {
	outputs.KinesisClient
	inputs.PutClient
}

type toolSettings struct {
	ctx            context.Context
	startTime      opt.Maybe[time.Time]
	readers        outputs.ReaderProvider
	cacheOptions   []outputs.CacheOption
	writerOptions  []inputs.WriterOption
	verifyInterval time.Duration
	debugLogger    framework.Logger
}

// ToolOption is an option for New.
type ToolOption helpers.ConfigOption[toolSettings]

// StartTime sets how far back outputs are read. The default is the time the Tool was created,
// so that only records produced during the scenario are seen.
func StartTime(t time.Time) ToolOption {
	return helpers.ConfigOptionFunc[toolSettings](func(s *toolSettings) error {
		s.startTime = opt.Some(t)
		return nil
	})
}

// ReadersFrom replaces the default provider, which reads Kinesis data streams with the Tool's
// client.
func ReadersFrom(provider outputs.ReaderProvider) ToolOption {
	return helpers.ConfigOptionFunc[toolSettings](func(s *toolSettings) error {
		s.readers = provider
		return nil
	})
}

// OutputOptions adds options for every OutputCache the Tool opens.
func OutputOptions(options ...outputs.CacheOption) ToolOption {
	return helpers.ConfigOptionFunc[toolSettings](func(s *toolSettings) error {
		s.cacheOptions = append(s.cacheOptions, options...)
		return nil
	})
}

// InputOptions adds options for every StreamWriter the Tool creates.
func InputOptions(options ...inputs.WriterOption) ToolOption {
	return helpers.ConfigOptionFunc[toolSettings](func(s *toolSettings) error {
		s.writerOptions = append(s.writerOptions, options...)
		return nil
	})
}

// VerifyInterval sets how often a verification with a deadline is re-evaluated. It must be
// positive.
func VerifyInterval(interval time.Duration) ToolOption {
	return helpers.ConfigOptionFunc[toolSettings](func(s *toolSettings) error {
		if interval <= 0 {
			return fmt.Errorf("verify interval must be positive, got %s", interval)
		}
		s.verifyInterval = interval
		return nil
	})
}

// WithContext bounds the lifetime of every output the Tool opens. The default is a context
// that is cancelled by Close.
func WithContext(ctx context.Context) ToolOption {
	return helpers.ConfigOptionFunc[toolSettings](func(s *toolSettings) error {
		s.ctx = ctx
		return nil
	})
}

// ToolLogger sets a logger for debug output from the Tool and everything it opens.
func ToolLogger(logger framework.Logger) ToolOption {
	return helpers.ConfigOptionFunc[toolSettings](func(s *toolSettings) error {
		s.debugLogger = logger
		return nil
	})
}

type cancellable interface {
	Cancel()
}

// Tool sets up one test scenario. Create it at the start of the test.
type Tool struct {
	t              helpers.TestContext
	io             IOProvider
	client         Client
	readers        outputs.ReaderProvider
	config         outputs.ReaderConfiguration
	cacheOptions   []outputs.CacheOption
	writerOptions  []inputs.WriterOption
	verifyInterval time.Duration
	debugLogger    framework.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	opened         []cancellable
	lock           sync.Mutex
}

// New creates a Tool for the application behind io. If t has a Cleanup method, as *testing.T
// does, Close is registered with it.
func New(t helpers.TestContext, io IOProvider, client Client, options ...ToolOption) (*Tool, error) {
	settings := toolSettings{ctx: context.Background(), verifyInterval: DefaultVerifyInterval}
	if err := helpers.ApplyOptions[toolSettings, ToolOption](&settings, options...); err != nil {
		return nil, err
	}
	if settings.readers == nil {
		settings.readers = outputs.NewKinesisReaderProvider(client)
	}
	ctx, cancel := context.WithCancel(settings.ctx)
	tool := &Tool{
		t:              t,
		io:             io,
		client:         client,
		readers:        settings.readers,
		config:         outputs.StartingAt(settings.startTime.OrElse(time.Now())),
		cacheOptions:   settings.cacheOptions,
		writerOptions:  settings.writerOptions,
		verifyInterval: settings.verifyInterval,
		debugLogger:    framework.LoggerOrNull(settings.debugLogger),
		ctx:            ctx,
		cancel:         cancel,
	}
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(tool.Close)
	}
	return tool, nil
}

// ReaderConfiguration returns the configuration used for every output the Tool opens.
func (tool *Tool) ReaderConfiguration() outputs.ReaderConfiguration { return tool.config }

// Close stops every output the Tool has opened. Records already accumulated remain readable.
func (tool *Tool) Close() {
	tool.lock.Lock()
	opened := tool.opened
	tool.opened = nil
	tool.lock.Unlock()
	for _, c := range opened {
		c.Cancel()
	}
	tool.cancel()
}

func (tool *Tool) track(c cancellable) {
	tool.lock.Lock()
	tool.opened = append(tool.opened, c)
	tool.lock.Unlock()
}

// TheInputStream returns a setup that writes JSON-encoded values to the application's input
// stream, all with DefaultPartitionKey.
func TheInputStream[T any](tool *Tool) *InputSetup[T, *inputs.PutResult] {
	translator := inputs.JSONEntryTranslator[T]{PartitionKey: inputs.ConstantPartitionKey[T](inputs.DefaultPartitionKey)}
	provider := inputs.NewKinesisWriterProvider[T](tool.client, translator, tool.inputOptions()...)
	return TheInput[T, *inputs.PutResult](tool, provider)
}

// TheInput returns a setup that writes to the application's input with a writer from provider.
func TheInput[T any, R any](tool *Tool, provider inputs.WriterProvider[T, R]) *InputSetup[T, R] {
	setup := &InputSetup[T, R]{t: tool.t, ctx: tool.ctx}
	resource, err := tool.io.Input(tool.ctx)
	if err == nil {
		setup.writer, err = provider.WriterFor(resource)
	}
	setup.err = err
	return setup
}

func (tool *Tool) inputOptions() []inputs.WriterOption {
	return append(helpers.CopyOf(tool.writerOptions), inputs.WriterLogger(tool.debugLogger))
}

// TheOutput returns a verification of the named output, whose records are JSON-encoded Ts.
func TheOutput[T any](tool *Tool, name string) *OutputVerification[T] {
	return TheOutputWith[T](tool, name, outputs.JSONRecordTranslator[T]{})
}

// TheOutputWith returns a verification of the named output, decoding records with translator.
func TheOutputWith[T any](tool *Tool, name string, translator outputs.RecordTranslator[T]) *OutputVerification[T] {
	verification := &OutputVerification[T]{t: tool.t, name: name, interval: tool.verifyInterval}
	resource, err := tool.io.Output(tool.ctx, name)
	if err != nil {
		verification.err = err
		return verification
	}
	options := append(helpers.CopyOf(tool.cacheOptions), outputs.CacheLogger(tool.debugLogger))
	cache, err := outputs.OpenOutput[T](tool.ctx, tool.readers, resource, translator, tool.config, options...)
	if err != nil {
		verification.err = err
		return verification
	}
	tool.track(cache)
	verification.output = cache
	return verification
}
