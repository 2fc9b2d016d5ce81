package outputs

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

// RecordTranslator converts a raw stream record into a value.
type RecordTranslator[T any] interface {
	ToValue(record types.Record) (T, error)
}

// TranslatorFunc adapts a function to RecordTranslator.
type TranslatorFunc[T any] func(record types.Record) (T, error)

func (f TranslatorFunc[T]) ToValue(record types.Record) (T, error) { return f(record) }

// JSONRecordTranslator decodes the record data as JSON into a T.
type JSONRecordTranslator[T any] struct{}

func (JSONRecordTranslator[T]) ToValue(record types.Record) (T, error) {
	var value T
	err := json.Unmarshal(record.Data, &value)
	return value, err
}

// StringRecordTranslator returns the record data as a string.
func StringRecordTranslator() RecordTranslator[string] {
	return TranslatorFunc[string](func(record types.Record) (string, error) {
		return string(record.Data), nil
	})
}
