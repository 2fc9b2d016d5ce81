package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics"
	"github.com/fatih/color"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/Nuvalence/kinesis-quality-toolkit/config"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
	"github.com/Nuvalence/kinesis-quality-toolkit/kda"
	"github.com/Nuvalence/kinesis-quality-toolkit/kdaerrors"
	"github.com/Nuvalence/kinesis-quality-toolkit/monitor"
	"github.com/Nuvalence/kinesis-quality-toolkit/outputs"
)

const shutdownTimeout = 5 * time.Second

var (
	outputNameColor  = color.New(color.FgCyan)              //nolint:gochecknoglobals
	errorRecordColor = color.New(color.FgRed)               //nolint:gochecknoglobals
	emptyOutputColor = color.New(color.Faint)               //nolint:gochecknoglobals
	statusColor      = color.New(color.FgGreen, color.Bold) //nolint:gochecknoglobals
)

func main() {
	var params commandParams
	if !params.Read(os.Args, os.Stderr) {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loggers := ldlog.NewDefaultLoggers()
	if params.debug {
		loggers.SetMinLevel(ldlog.Debug)
	}

	if err := run(ctx, params, loggers, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, params commandParams, loggers ldlog.Loggers, out io.Writer) error {
	debugLogger := loggers.ForLevel(ldlog.Debug)

	env, err := config.ReadEnvironment(params.configFile)
	if err != nil {
		return err
	}
	params.applyTo(&env)
	if err := env.Validate(); err != nil {
		return err
	}
	cfg, err := env.AWSConfig(ctx)
	if err != nil {
		return err
	}
	analytics := kinesisanalytics.NewFromConfig(cfg)

	if goal := params.goal(); goal != "" {
		if err := ensure(ctx, analytics, env, goal, loggers, out); err != nil {
			return err
		}
	}

	names := helpers.CopyOf(env.Outputs)
	if params.errors {
		names = append(names, kdaerrors.ErrorStreamName)
	}
	if len(names) == 0 {
		return nil
	}

	var cacheOptions []outputs.CacheOption
	if d, ok := env.OutputRefreshInterval.Get(); ok {
		cacheOptions = append(cacheOptions, outputs.RefreshInterval(d.Value()))
	}
	refreshInterval := env.OutputRefreshInterval.OrElse(config.Duration(outputs.DefaultRefreshInterval)).Value()

	var server *monitor.Server
	if params.serve != "" {
		server = monitor.NewServer(debugLogger)
		defer server.Close()
		stopServing := serve(params.serve, server, loggers)
		defer stopServing()
	}

	t := &tailer{
		ctx:      ctx,
		io:       kda.NewIOProvider(kda.NewApplicationSource(analytics, env.ApplicationName)),
		readers:  outputs.NewKinesisReaderProvider(kinesis.NewFromConfig(cfg)),
		config:   outputs.StartingAt(time.Now().Add(-params.since)),
		options:  append(cacheOptions, outputs.CacheLogger(debugLogger)),
		server:   server,
		interval: refreshInterval,
	}
	defer t.close()
	for _, name := range names {
		if name == kdaerrors.ErrorStreamName {
			err = openTail(t, name, kdaerrors.NewTranslator(nil), formatErrorRecord)
		} else {
			err = openTail(t, name, outputs.TranslatorFunc[ldvalue.Value](parseRecord), helpers.CanonicalizedJSONString)
		}
		if err != nil {
			return err
		}
	}

	t.printNew(out)
	if !params.watch && server == nil {
		return nil
	}
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.printNew(out)
		}
	}
}

func ensure(
	ctx context.Context,
	client kda.Client,
	env config.Environment,
	goal kda.Goal,
	loggers ldlog.Loggers,
	out io.Writer,
) error {
	options := []kda.LifecycleOption{kda.LifecycleLogger(loggers.ForLevel(ldlog.Debug))}
	if n, ok := env.MaxStatusAttempts.Get(); ok {
		options = append(options, kda.MaxAttempts(n))
	}
	if d, ok := env.StatusPollInterval.Get(); ok {
		options = append(options, kda.PollInterval(d.Value()))
	}
	lifecycle, err := kda.NewLifecycleManager(client, env.ApplicationName, options...)
	if err != nil {
		return err
	}
	loggers.Infof("Ensuring that %s is %s", env.ApplicationName, goal)
	if err := lifecycle.Ensure(ctx, goal); err != nil {
		return err
	}
	statusColor.Fprintf(out, "%s is %s\n", env.ApplicationName, goal)
	return nil
}

func serve(addr string, handler http.Handler, loggers ldlog.Loggers) func() {
	httpServer := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		loggers.Infof("Serving record monitor on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggers.Errorf("Record monitor stopped: %s", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}
}

// parseRecord reads a record as JSON, or as a string if it is not JSON.
func parseRecord(record types.Record) (ldvalue.Value, error) {
	if json.Valid(record.Data) {
		return ldvalue.Parse(record.Data), nil
	}
	return ldvalue.String(string(record.Data)), nil
}

func formatErrorRecord(r kdaerrors.ErrorRecord) string {
	return errorRecordColor.Sprint(r.String())
}

type tailer struct {
	ctx      context.Context
	io       *kda.IOProvider
	readers  outputs.ReaderProvider
	config   outputs.ReaderConfiguration
	options  []outputs.CacheOption
	server   *monitor.Server
	interval time.Duration
	tails    []printer
}

type printer interface {
	printNew(out io.Writer)
	cancel()
}

type tail[T any] struct {
	name      string
	cache     *outputs.OutputCache[T]
	format    func(T) string
	printed   int
	announced bool
}

func openTail[T any](t *tailer, name string, translator outputs.RecordTranslator[T], format func(T) string) error {
	resource, err := t.io.Output(t.ctx, name)
	if err != nil {
		return err
	}
	cache, err := outputs.OpenOutput[T](t.ctx, t.readers, resource, translator, t.config, t.options...)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", name, err)
	}
	if t.server != nil {
		if _, err := monitor.Watch[T](t.ctx, t.server, name, cache, t.interval); err != nil {
			cache.Cancel()
			return err
		}
	}
	t.tails = append(t.tails, &tail[T]{name: name, cache: cache, format: format})
	return nil
}

func (t *tailer) printNew(out io.Writer) {
	for _, p := range t.tails {
		p.printNew(out)
	}
}

func (t *tailer) close() {
	for _, p := range t.tails {
		p.cancel()
	}
}

func (t *tail[T]) printNew(out io.Writer) {
	records := t.cache.Records()
	if len(records) == 0 && !t.announced {
		emptyOutputColor.Fprintf(out, "%s: no records yet\n", t.name)
		t.announced = true
	}
	for _, r := range records[t.printed:] {
		outputNameColor.Fprintf(out, "%s: ", t.name)
		fmt.Fprintln(out, t.format(r))
	}
	t.printed = len(records)
	if err := t.cache.Err(); err != nil {
		errorRecordColor.Fprintf(out, "%s: %s\n", t.name, err)
	}
}

func (t *tail[T]) cancel() { t.cache.Cancel() }
