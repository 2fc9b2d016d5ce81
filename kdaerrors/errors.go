// Package kdaerrors decodes the records that Kinesis Data Analytics writes to an
// application's in-application error stream.
//
// Every error record has the same envelope; the DATA_ROW property holds the hex-encoded row
// that caused the error. How that row is decoded depends on where the error came from, which
// is identified by the PUMP_NAME property: rows rejected at the input have no pump name, and
// rows rejected by a pump are in that pump's schema. A Registry maps pump names to row
// decoders.
package kdaerrors

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
)

const (
	// ErrorStreamName is the name of the application output that receives error records.
	ErrorStreamName = "error_stream"
	// TimeLayout is the format of ERROR_TIME and DATA_ROWTIME, always in UTC.
	TimeLayout = "2006-01-02 15:04:05.000"
	// InvalidInputPump is the pump name of errors for rows rejected at the input. The service
	// writes these with a PUMP_NAME of "null".
	InvalidInputPump = ""
)

// ErrorRecord is one record from the error stream.
type ErrorRecord struct {
	ErrorTime time.Time
	Level     string
	Name      string
	Message   string
	RowTime   time.Time
	PumpName  string
	// RawDataRow is the hex-decoded DATA_ROW.
	RawDataRow []byte
	// DataRow is RawDataRow decoded by the decoder registered for PumpName.
	DataRow interface{}
}

// IsInvalidInput returns true if the error is for a row rejected at the input.
func (e ErrorRecord) IsInvalidInput() bool { return e.PumpName == InvalidInputPump }

func (e ErrorRecord) String() string {
	return fmt.Sprintf("[%s %s] %s: %s (pump=%q, row=%s)",
		e.ErrorTime.Format(TimeLayout), e.Level, e.Name, e.Message, e.PumpName, string(e.RawDataRow))
}

// DataRowDecoder decodes the hex-decoded bytes of a DATA_ROW.
type DataRowDecoder func(row []byte) (interface{}, error)

// StringDataRow returns the row as a string. It is the default decoder.
func StringDataRow(row []byte) (interface{}, error) {
	return string(row), nil
}

// JSONDataRow returns a decoder that unmarshals the row as JSON into a T.
func JSONDataRow[T any]() DataRowDecoder {
	return func(row []byte) (interface{}, error) {
		var value T
		if err := json.Unmarshal(row, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// Registry chooses a DataRowDecoder by pump name.
type Registry struct {
	decoders map[string]DataRowDecoder
	fallback DataRowDecoder
}

// NewRegistry returns a Registry that decodes every row with StringDataRow.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]DataRowDecoder), fallback: StringDataRow}
}

// Register sets the decoder for rows from the named pump. Use InvalidInputPump for rows
// rejected at the input.
func (r *Registry) Register(pumpName string, decoder DataRowDecoder) *Registry {
	r.decoders[pumpName] = decoder
	return r
}

// WithDefault sets the decoder for pumps that have no registered decoder.
func (r *Registry) WithDefault(decoder DataRowDecoder) *Registry {
	r.fallback = decoder
	return r
}

func (r *Registry) decoderFor(pumpName string) DataRowDecoder {
	if d, ok := r.decoders[pumpName]; ok {
		return d
	}
	return r.fallback
}

// Decode parses an error record, decoding its data row with the decoder for its pump.
func (r *Registry) Decode(data []byte) (ErrorRecord, error) {
	var (
		ret                ErrorRecord
		errorTime, rowTime string
		hexRow             string
	)
	reader := jreader.NewReader(data)
	for obj := reader.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "ERROR_TIME":
			errorTime, _ = reader.StringOrNull()
		case "ERROR_LEVEL":
			ret.Level, _ = reader.StringOrNull()
		case "ERROR_NAME":
			ret.Name, _ = reader.StringOrNull()
		case "MESSAGE":
			ret.Message, _ = reader.StringOrNull()
		case "DATA_ROWTIME":
			rowTime, _ = reader.StringOrNull()
		case "DATA_ROW":
			hexRow, _ = reader.StringOrNull()
		case "PUMP_NAME":
			ret.PumpName, _ = reader.StringOrNull()
		default:
			_ = reader.SkipValue()
		}
	}
	if err := reader.Error(); err != nil {
		return ErrorRecord{}, fmt.Errorf("malformed error record: %w", err)
	}
	if ret.PumpName == "null" {
		ret.PumpName = InvalidInputPump
	}
	var err error
	if ret.ErrorTime, err = parseTime(errorTime); err != nil {
		return ErrorRecord{}, fmt.Errorf("invalid ERROR_TIME: %w", err)
	}
	if ret.RowTime, err = parseTime(rowTime); err != nil {
		return ErrorRecord{}, fmt.Errorf("invalid DATA_ROWTIME: %w", err)
	}
	if ret.RawDataRow, err = hex.DecodeString(hexRow); err != nil {
		return ErrorRecord{}, fmt.Errorf("invalid DATA_ROW: %w", err)
	}
	if ret.DataRow, err = r.decoderFor(ret.PumpName)(ret.RawDataRow); err != nil {
		return ErrorRecord{}, fmt.Errorf("could not decode data row of error from pump %q: %w", ret.PumpName, err)
	}
	return ret, nil
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(TimeLayout, value, time.UTC)
}

// Translator converts error stream records into ErrorRecords. It satisfies
// outputs.RecordTranslator[ErrorRecord].
type Translator struct {
	Registry *Registry
}

// NewTranslator returns a Translator using registry, or NewRegistry() if registry is nil.
func NewTranslator(registry *Registry) Translator {
	if registry == nil {
		registry = NewRegistry()
	}
	return Translator{Registry: registry}
}

func (t Translator) ToValue(record types.Record) (ErrorRecord, error) {
	return t.Registry.Decode(record.Data)
}
