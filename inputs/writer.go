// Package inputs writes test records into the input stream of a Kinesis Data Analytics
// application.
package inputs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/google/uuid"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
	"github.com/Nuvalence/kinesis-quality-toolkit/resources"
)

const (
	// DefaultPartitionKey puts every record on the same shard, which preserves their order.
	DefaultPartitionKey = "0"
	// MaxRecordsPerRequest is the most records that one PutRecords call accepts.
	MaxRecordsPerRequest = 500
)

// Writer writes a batch of values somewhere and returns a service-specific response.
type Writer[T any, R any] interface {
	Put(ctx context.Context, records []T) (R, error)
}

// WriterProvider creates a Writer for an input resource.
type WriterProvider[T any, R any] interface {
	WriterFor(resource resources.AwsResource) (Writer[T, R], error)
}

// EntryTranslator converts a value into a PutRecords entry.
type EntryTranslator[T any] interface {
	ToEntry(record T) (types.PutRecordsRequestEntry, error)
}

// PartitionKeyFunc chooses the partition key of a record.
type PartitionKeyFunc[T any] func(record T) string

// ConstantPartitionKey uses the same key for every record.
func ConstantPartitionKey[T any](key string) PartitionKeyFunc[T] {
	return func(T) string { return key }
}

// RandomPartitionKey uses a new random key for every record, spreading records over all shards.
func RandomPartitionKey[T any]() PartitionKeyFunc[T] {
	return func(T) string { return uuid.NewString() }
}

// JSONEntryTranslator encodes values as JSON. If PartitionKey is nil, DefaultPartitionKey is used.
type JSONEntryTranslator[T any] struct {
	PartitionKey PartitionKeyFunc[T]
}

func (t JSONEntryTranslator[T]) ToEntry(record T) (types.PutRecordsRequestEntry, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return types.PutRecordsRequestEntry{}, err
	}
	key := DefaultPartitionKey
	if t.PartitionKey != nil {
		key = t.PartitionKey(record)
	}
	return types.PutRecordsRequestEntry{Data: data, PartitionKey: aws.String(key)}, nil
}

// EncodeError means a value could not be converted into a PutRecords entry.
type EncodeError struct {
	Index int
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("could not encode input record %d: %s", e.Index, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// PutResult combines the responses of the PutRecords calls made for one Put. Records has one
// entry per input value, in order.
type PutResult struct {
	FailedRecordCount int
	Records           []types.PutRecordsResultEntry
}

// FailedIndexes returns the positions of the values that the stream did not accept.
func (r *PutResult) FailedIndexes() []int {
	var ret []int
	for i, record := range r.Records {
		if aws.ToString(record.ErrorCode) != "" {
			ret = append(ret, i)
		}
	}
	return ret
}

// PutClient is the subset of *kinesis.Client used for writing.
type PutClient interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

type writerSettings struct {
	debugLogger framework.Logger
}

// WriterOption is an option for NewStreamWriter.
type WriterOption helpers.ConfigOption[writerSettings]

// WriterLogger sets a logger for debug output about each request.
func WriterLogger(logger framework.Logger) WriterOption {
	return helpers.ConfigOptionFunc[writerSettings](func(s *writerSettings) error {
		s.debugLogger = logger
		return nil
	})
}

// StreamWriter writes values to a Kinesis data stream with PutRecords. Individual records
// rejected by the stream are reported in the PutResult, not as an error.
type StreamWriter[T any] struct {
	client      PutClient
	stream      string
	translator  EntryTranslator[T]
	debugLogger framework.Logger
}

func NewStreamWriter[T any](
	client PutClient,
	stream string,
	translator EntryTranslator[T],
	options ...WriterOption,
) (*StreamWriter[T], error) {
	var settings writerSettings
	if err := helpers.ApplyOptions[writerSettings, WriterOption](&settings, options...); err != nil {
		return nil, err
	}
	return &StreamWriter[T]{
		client:      client,
		stream:      stream,
		translator:  translator,
		debugLogger: framework.LoggerOrNull(settings.debugLogger),
	}, nil
}

// Put writes the values in batches of MaxRecordsPerRequest. If any value cannot be encoded,
// nothing is written.
func (w *StreamWriter[T]) Put(ctx context.Context, records []T) (*PutResult, error) {
	entries := make([]types.PutRecordsRequestEntry, 0, len(records))
	for i, record := range records {
		entry, err := w.translator.ToEntry(record)
		if err != nil {
			return nil, &EncodeError{Index: i, Err: err}
		}
		entries = append(entries, entry)
	}
	result := &PutResult{Records: make([]types.PutRecordsResultEntry, 0, len(entries))}
	for start := 0; start < len(entries); start += MaxRecordsPerRequest {
		end := start + MaxRecordsPerRequest
		if end > len(entries) {
			end = len(entries)
		}
		out, err := w.client.PutRecords(ctx, &kinesis.PutRecordsInput{
			StreamName: aws.String(w.stream),
			Records:    entries[start:end],
		})
		if err != nil {
			return result, fmt.Errorf("could not write records %d-%d to %s: %w", start, end-1, w.stream, err)
		}
		result.FailedRecordCount += int(aws.ToInt32(out.FailedRecordCount))
		result.Records = append(result.Records, out.Records...)
		w.debugLogger.Printf("Wrote %d records to %s (%d failed)", end-start, w.stream, aws.ToInt32(out.FailedRecordCount))
	}
	return result, nil
}

// KinesisWriterProvider creates StreamWriters for inputs that are Kinesis data streams.
type KinesisWriterProvider[T any] struct {
	client     PutClient
	translator EntryTranslator[T]
	options    []WriterOption
}

func NewKinesisWriterProvider[T any](
	client PutClient,
	translator EntryTranslator[T],
	options ...WriterOption,
) *KinesisWriterProvider[T] {
	return &KinesisWriterProvider[T]{client: client, translator: translator, options: options}
}

func (p *KinesisWriterProvider[T]) WriterFor(resource resources.AwsResource) (Writer[T, *PutResult], error) {
	if resource.Service != "kinesis" {
		return nil, fmt.Errorf("cannot write to %s: only Kinesis data streams can be written", resource.ARN)
	}
	writer, err := NewStreamWriter(p.client, resource.Resource, p.translator, p.options...)
	if err != nil {
		return nil, err
	}
	return writer, nil
}
