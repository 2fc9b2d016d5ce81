package outputs

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
)

// Reader is anything that can be polled for the values of an output.
type Reader[T any] interface {
	// Poll returns values read from the output. What "values" means depends on the reader:
	// a StreamReader returns only values that are new since its previous Poll, while an
	// OutputCache returns everything it has accumulated.
	Poll(ctx context.Context) ([]T, error)
	// SetConfiguration changes where reading starts in partitions not yet read.
	SetConfiguration(config ReaderConfiguration)
}

// PartitionLister lists the partitions of a stream.
type PartitionLister interface {
	ListPartitions(ctx context.Context, stream string) ([]string, error)
}

// FetchResult is one batch of records from a partition, plus the token for resuming after it.
// NextToken is empty if the partition is closed and has no more records.
type FetchResult struct {
	Records   []types.Record
	NextToken string
}

// RecordFetcher fetches the next batch of records from a partition.
type RecordFetcher interface {
	FetchRecords(ctx context.Context, stream, partition string, position Position) (FetchResult, error)
}

// LogSource is a partitioned log that can be listed and read.
type LogSource interface {
	PartitionLister
	RecordFetcher
}

type readerSettings struct {
	config      ReaderConfiguration
	debugLogger framework.Logger
}

// ReaderOption is an option for NewStreamReader.
type ReaderOption helpers.ConfigOption[readerSettings]

// ReaderConfig sets the initial configuration of a reader.
func ReaderConfig(config ReaderConfiguration) ReaderOption {
	return helpers.ConfigOptionFunc[readerSettings](func(s *readerSettings) error {
		s.config = config
		return nil
	})
}

// ReaderLogger sets a logger for debug output about each fetch.
func ReaderLogger(logger framework.Logger) ReaderOption {
	return helpers.ConfigOptionFunc[readerSettings](func(s *readerSettings) error {
		s.debugLogger = logger
		return nil
	})
}

// StreamReader reads a partitioned stream incrementally. Each Poll lists the partitions of
// the stream, fetches one batch from every partition starting where the previous Poll left
// off, and returns the decoded values in partition order.
//
// A partition that has not been read before starts at the configured start time, or at the
// oldest retained record if there is none. A StreamReader is not safe for concurrent calls
// to Poll; an OutputCache serializes them.
type StreamReader[T any] struct {
	stream      string
	source      LogSource
	translator  RecordTranslator[T]
	cursors     *CursorMap
	config      ReaderConfiguration
	configLock  sync.Mutex
	debugLogger framework.Logger
}

func NewStreamReader[T any](
	stream string,
	source LogSource,
	translator RecordTranslator[T],
	options ...ReaderOption,
) (*StreamReader[T], error) {
	var settings readerSettings
	if err := helpers.ApplyOptions[readerSettings, ReaderOption](&settings, options...); err != nil {
		return nil, err
	}
	return &StreamReader[T]{
		stream:      stream,
		source:      source,
		translator:  translator,
		cursors:     NewCursorMap(),
		config:      settings.config,
		debugLogger: framework.LoggerOrNull(settings.debugLogger),
	}, nil
}

func (r *StreamReader[T]) SetConfiguration(config ReaderConfiguration) {
	r.configLock.Lock()
	r.config = config
	r.configLock.Unlock()
}

func (r *StreamReader[T]) configuration() ReaderConfiguration {
	r.configLock.Lock()
	defer r.configLock.Unlock()
	return r.config
}

// Cursors returns the reader's partition cursors.
func (r *StreamReader[T]) Cursors() *CursorMap { return r.cursors }

// Poll returns the values that are new since the previous call.
//
// The poll is all or nothing: if listing, fetching, or decoding fails for any partition, the
// error is returned and no cursor is advanced, so the next Poll fetches the same records again.
func (r *StreamReader[T]) Poll(ctx context.Context) ([]T, error) {
	partitions, err := r.source.ListPartitions(ctx, r.stream)
	if err != nil {
		return nil, &FetchError{Stream: r.stream, Err: err}
	}
	config := r.configuration()
	nextTokens := make(map[string]string, len(partitions))
	ret := make([]T, 0)
	for _, partition := range partitions {
		position := InitialPosition(config)
		if token, ok := r.cursors.Get(partition); ok {
			if token == "" {
				continue // closed and fully read
			}
			position = AfterToken(token)
		}
		result, err := r.source.FetchRecords(ctx, r.stream, partition, position)
		if err != nil {
			return nil, &FetchError{Stream: r.stream, Partition: partition, Position: position, Err: err}
		}
		r.debugLogger.Printf("Fetched %d records from %s/%s (%s)", len(result.Records), r.stream, partition, position)
		for _, record := range result.Records {
			value, err := r.translator.ToValue(record)
			if err != nil {
				return nil, &DecodeError{
					Stream:         r.stream,
					Partition:      partition,
					SequenceNumber: aws.ToString(record.SequenceNumber),
					Err:            err,
				}
			}
			ret = append(ret, value)
		}
		nextTokens[partition] = result.NextToken
	}
	r.cursors.PutAll(nextTokens)
	return ret, nil
}
