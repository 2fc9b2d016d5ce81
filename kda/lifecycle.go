package kda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics/types"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
)

const (
	// DefaultMaxAttempts is how many times the application status is checked before giving up.
	DefaultMaxAttempts = 30
	// DefaultPollInterval is the wait between status checks.
	DefaultPollInterval = 10 * time.Second
)

// Goal is the state that a LifecycleManager drives an application to.
type Goal string

const (
	GoalRunning Goal = "RUNNING"
	GoalStopped Goal = "STOPPED"
)

// InvalidStateError means the application reached a state from which the goal cannot be
// reached, such as DELETING.
type InvalidStateError struct {
	Application string
	Goal        Goal
	Status      types.ApplicationStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("application %s is %s, which cannot become %s", e.Application, e.Status, e.Goal)
}

// TimeoutError means the application did not reach the goal within the allowed attempts.
type TimeoutError struct {
	Application string
	Goal        Goal
	Attempts    int
	LastStatus  types.ApplicationStatus
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("application %s did not become %s after %d status checks (last status %s)",
		e.Application, e.Goal, e.Attempts, e.LastStatus)
}

type action int

const (
	actionWait action = iota
	actionDone
	actionStart
	actionStop
	actionFail
)

func nextAction(goal Goal, status types.ApplicationStatus) action {
	switch goal {
	case GoalRunning:
		switch status {
		case types.ApplicationStatusRunning:
			return actionDone
		case types.ApplicationStatusReady:
			return actionStart
		case types.ApplicationStatusStarting, types.ApplicationStatusUpdating:
			return actionWait
		}
	case GoalStopped:
		switch status {
		case types.ApplicationStatusReady:
			return actionDone
		case types.ApplicationStatusRunning:
			return actionStop
		case types.ApplicationStatusStopping:
			return actionWait
		}
	}
	return actionFail
}

type lifecycleSettings struct {
	maxAttempts  int
	pollInterval time.Duration
	debugLogger  framework.Logger
}

// LifecycleOption is an option for NewLifecycleManager.
type LifecycleOption helpers.ConfigOption[lifecycleSettings]

// MaxAttempts sets how many times the status is checked before a TimeoutError.
func MaxAttempts(attempts int) LifecycleOption {
	return helpers.ConfigOptionFunc[lifecycleSettings](func(s *lifecycleSettings) error {
		if attempts < 1 {
			return fmt.Errorf("max attempts must be at least 1, got %d", attempts)
		}
		s.maxAttempts = attempts
		return nil
	})
}

// PollInterval sets the wait between status checks.
func PollInterval(interval time.Duration) LifecycleOption {
	return helpers.ConfigOptionFunc[lifecycleSettings](func(s *lifecycleSettings) error {
		s.pollInterval = interval
		return nil
	})
}

// LifecycleLogger sets a logger for each status check and command.
func LifecycleLogger(logger framework.Logger) LifecycleOption {
	return helpers.ConfigOptionFunc[lifecycleSettings](func(s *lifecycleSettings) error {
		s.debugLogger = logger
		return nil
	})
}

// LifecycleManager starts or stops an application and waits for it to settle.
//
// Each attempt describes the application afresh and acts on its status: a start or stop
// command is sent when needed, transitional states are waited out, and any other state
// fails immediately with an InvalidStateError. Commands are not retried; their effect is
// observed by the following status checks.
type LifecycleManager struct {
	client       Client
	source       *ApplicationSource
	maxAttempts  int
	pollInterval time.Duration
	debugLogger  framework.Logger
}

func NewLifecycleManager(client Client, applicationName string, options ...LifecycleOption) (*LifecycleManager, error) {
	settings := lifecycleSettings{maxAttempts: DefaultMaxAttempts, pollInterval: DefaultPollInterval}
	if err := helpers.ApplyOptions[lifecycleSettings, LifecycleOption](&settings, options...); err != nil {
		return nil, err
	}
	return &LifecycleManager{
		client:       client,
		source:       NewApplicationSource(client, applicationName),
		maxAttempts:  settings.maxAttempts,
		pollInterval: settings.pollInterval,
		debugLogger:  framework.LoggerOrNull(settings.debugLogger),
	}, nil
}

// EnsureRunning starts the application if it is READY and waits until it is RUNNING.
// Every input resumes from the point where the application last stopped.
func (l *LifecycleManager) EnsureRunning(ctx context.Context) error {
	return l.ensure(ctx, GoalRunning)
}

// EnsureStopped stops the application if it is RUNNING and waits until it is READY.
func (l *LifecycleManager) EnsureStopped(ctx context.Context) error {
	return l.ensure(ctx, GoalStopped)
}

// Ensure drives the application to the given goal.
func (l *LifecycleManager) Ensure(ctx context.Context, goal Goal) error {
	switch goal {
	case GoalRunning, GoalStopped:
		return l.ensure(ctx, goal)
	default:
		return fmt.Errorf("unknown goal %q", goal)
	}
}

func (l *LifecycleManager) ensure(ctx context.Context, goal Goal) error {
	name := l.source.ApplicationName()
	var lastStatus types.ApplicationStatus
	err := helpers.RetryWithAttempts(ctx, l.maxAttempts, l.pollInterval, func(attempt int) (bool, error) {
		detail, err := l.source.Describe(ctx)
		if err != nil {
			return false, err
		}
		lastStatus = detail.ApplicationStatus
		l.debugLogger.Printf("Application %s is %s (check %d of %d, goal %s)", name, lastStatus, attempt, l.maxAttempts, goal)
		switch nextAction(goal, lastStatus) {
		case actionDone:
			return true, nil
		case actionWait:
			return false, nil
		case actionStart:
			return false, l.start(ctx, detail)
		case actionStop:
			return false, l.stop(ctx)
		default:
			return false, &InvalidStateError{Application: name, Goal: goal, Status: lastStatus}
		}
	})
	if errors.Is(err, helpers.ErrAttemptsExhausted) {
		return &TimeoutError{Application: name, Goal: goal, Attempts: l.maxAttempts, LastStatus: lastStatus}
	}
	return err
}

func (l *LifecycleManager) start(ctx context.Context, detail *types.ApplicationDetail) error {
	name := l.source.ApplicationName()
	configs := make([]types.InputConfiguration, 0, len(detail.InputDescriptions))
	for _, input := range detail.InputDescriptions {
		configs = append(configs, types.InputConfiguration{
			Id: input.InputId,
			InputStartingPositionConfiguration: &types.InputStartingPositionConfiguration{
				InputStartingPosition: types.InputStartingPositionLastStoppedPoint,
			},
		})
	}
	l.debugLogger.Printf("Starting application %s with %d inputs", name, len(configs))
	_, err := l.client.StartApplication(ctx, &kinesisanalytics.StartApplicationInput{
		ApplicationName:     aws.String(name),
		InputConfigurations: configs,
	})
	if err != nil {
		return fmt.Errorf("could not start application %s: %w", name, err)
	}
	return nil
}

func (l *LifecycleManager) stop(ctx context.Context) error {
	name := l.source.ApplicationName()
	l.debugLogger.Printf("Stopping application %s", name)
	_, err := l.client.StopApplication(ctx, &kinesisanalytics.StopApplicationInput{ApplicationName: aws.String(name)})
	if err != nil {
		return fmt.Errorf("could not stop application %s: %w", name, err)
	}
	return nil
}
