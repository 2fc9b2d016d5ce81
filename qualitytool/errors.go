package qualitytool

import (
	"fmt"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/Nuvalence/kinesis-quality-toolkit/kdaerrors"
)

// TheErrorOutput returns a verification of the application's error stream, with data rows
// decoded as strings.
func (tool *Tool) TheErrorOutput() *OutputVerification[kdaerrors.ErrorRecord] {
	return tool.TheErrorOutputWith(nil)
}

// TheErrorOutputWith returns a verification of the application's error stream, with data rows
// decoded by registry.
func (tool *Tool) TheErrorOutputWith(registry *kdaerrors.Registry) *OutputVerification[kdaerrors.ErrorRecord] {
	return TheOutputWith[kdaerrors.ErrorRecord](tool, kdaerrors.ErrorStreamName, kdaerrors.NewTranslator(registry))
}

func asErrorRecord(value interface{}) (kdaerrors.ErrorRecord, error) {
	switch r := value.(type) {
	case kdaerrors.ErrorRecord:
		return r, nil
	case *kdaerrors.ErrorRecord:
		if r != nil {
			return *r, nil
		}
	}
	return kdaerrors.ErrorRecord{}, fmt.Errorf("expected an error record, got %T", value)
}

// ErrorDataRow matches an error record whose decoded data row equals expected.
func ErrorDataRow(expected interface{}) m.Matcher {
	return m.Transform("data row", func(value interface{}) (interface{}, error) {
		r, err := asErrorRecord(value)
		return r.DataRow, err
	}).Should(m.Equal(expected))
}

// InvalidInputError matches an error record for a row that was rejected at the input.
func InvalidInputError() m.Matcher {
	return m.Transform("is invalid input", func(value interface{}) (interface{}, error) {
		r, err := asErrorRecord(value)
		return r.IsInvalidInput(), err
	}).Should(m.Equal(true))
}

// FromPump matches an error record raised by the named pump.
func FromPump(pumpName string) m.Matcher {
	return m.Transform("pump name", func(value interface{}) (interface{}, error) {
		r, err := asErrorRecord(value)
		return r.PumpName, err
	}).Should(m.Equal(pumpName))
}

// NoRecords matches an empty list of records.
func NoRecords() m.Matcher {
	return m.Length().Should(m.Equal(0))
}
