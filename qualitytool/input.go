package qualitytool

import (
	"context"
	"time"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
	"github.com/Nuvalence/kinesis-quality-toolkit/inputs"
)

// InputSetup writes scenario records to the application's input. Any failure to resolve the
// input or write to it fails the test immediately.
type InputSetup[T any, R any] struct {
	t       helpers.TestContext
	ctx     context.Context
	writer  inputs.Writer[T, R]
	err     error
	handler func(R)
}

// WithResponseHandler sets a function that receives the writer's response to each Given.
func (s *InputSetup[T, R]) WithResponseHandler(handler func(response R)) *InputSetup[T, R] {
	s.handler = handler
	return s
}

// Given writes the records to the input.
func (s *InputSetup[T, R]) Given(records []T) *InputSetup[T, R] {
	s.t.Helper()
	if s.err != nil {
		s.t.Errorf("unable to set up input: %s", s.err)
		s.t.FailNow()
		return s
	}
	response, err := s.writer.Put(s.ctx, records)
	if err != nil {
		s.t.Errorf("unable to write %d records to input: %s", len(records), err)
		s.t.FailNow()
		return s
	}
	if s.handler != nil {
		s.handler(response)
	}
	return s
}

// ThenWait pauses the scenario, for instance to give the application time to process records
// before more are written.
func (s *InputSetup[T, R]) ThenWait(d time.Duration) *InputSetup[T, R] {
	s.t.Helper()
	if d <= 0 {
		return s
	}
	if err := helpers.Sleep(s.ctx, d); err != nil {
		s.t.Errorf("wait interrupted: %s", err)
		s.t.FailNow()
	}
	return s
}
