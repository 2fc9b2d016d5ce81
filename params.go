package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Nuvalence/kinesis-quality-toolkit/config"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/opt"
	"github.com/Nuvalence/kinesis-quality-toolkit/kda"
)

// outputList is a flag that can be given more than once.
type outputList []string

func (l *outputList) String() string { return strings.Join(*l, ",") }

func (l *outputList) Set(value string) error {
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*l = append(*l, name)
		}
	}
	return nil
}

type commandParams struct {
	app        string
	configFile string
	ensure     string
	outputs    outputList
	errors     bool
	since      time.Duration
	watch      bool
	serve      string
	interval   time.Duration
	attempts   int
	debug      bool
}

func (c *commandParams) Read(args []string, stderr io.Writer) bool {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&c.app, "app", "", "name of the Kinesis Data Analytics application")
	fs.StringVar(&c.configFile, "config", "", "JSON or YAML environment file")
	fs.StringVar(&c.ensure, "ensure", "", `drive the application to "running" or "stopped" before reading`)
	fs.Var(&c.outputs, "output", "application output to read (may be repeated)")
	fs.BoolVar(&c.errors, "errors", false, "also read the application's error stream")
	fs.DurationVar(&c.since, "since", 0, "read records that arrived up to this long ago")
	fs.BoolVar(&c.watch, "watch", false, "keep printing new records until interrupted")
	fs.StringVar(&c.serve, "serve", "", "address to serve the record monitor on, such as :8112")
	fs.DurationVar(&c.interval, "interval", 0, "wait between application status checks")
	fs.IntVar(&c.attempts, "attempts", 0, "maximum number of application status checks")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args[1:]); err != nil {
		return false
	}
	if c.ensure != "" && c.goal() == "" {
		fmt.Fprintf(stderr, "-ensure must be \"running\" or \"stopped\", not %q\n", c.ensure)
		fs.Usage()
		return false
	}
	if c.since < 0 || c.interval < 0 || c.attempts < 0 {
		fmt.Fprintln(stderr, "negative values are not allowed for -since, -interval or -attempts")
		fs.Usage()
		return false
	}
	return true
}

func (c *commandParams) goal() kda.Goal {
	switch strings.ToLower(c.ensure) {
	case "running":
		return kda.GoalRunning
	case "stopped":
		return kda.GoalStopped
	default:
		return ""
	}
}

// applyTo overrides the environment file with any settings given on the command line.
func (c *commandParams) applyTo(env *config.Environment) {
	if c.app != "" {
		env.ApplicationName = c.app
	}
	if c.interval > 0 {
		env.StatusPollInterval = opt.Some(config.Duration(c.interval))
	}
	if c.attempts > 0 {
		env.MaxStatusAttempts = opt.Some(c.attempts)
	}
	if len(c.outputs) > 0 {
		env.Outputs = c.outputs
	}
}
