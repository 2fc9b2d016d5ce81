package outputs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"golang.org/x/time/rate"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
)

// Kinesis allows five GetRecords calls per second per shard.
const (
	DefaultGetRecordsRate  = rate.Limit(5)
	DefaultGetRecordsBurst = 5
)

// KinesisClient is the subset of *kinesis.Client used for reading streams.
type KinesisClient interface {
	ListShards(ctx context.Context, params *kinesis.ListShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
}

type sourceSettings struct {
	limiter     *rate.Limiter
	recordLimit int32
}

// SourceOption is an option for NewKinesisSource.
type SourceOption helpers.ConfigOption[sourceSettings]

// SourceRateLimit limits how often GetRecords is called. Use rate.Inf to disable limiting.
func SourceRateLimit(limit rate.Limit, burst int) SourceOption {
	return helpers.ConfigOptionFunc[sourceSettings](func(s *sourceSettings) error {
		s.limiter = rate.NewLimiter(limit, burst)
		return nil
	})
}

// SourceRecordLimit caps the number of records returned by each GetRecords call.
func SourceRecordLimit(limit int32) SourceOption {
	return helpers.ConfigOptionFunc[sourceSettings](func(s *sourceSettings) error {
		if limit < 1 || limit > 10000 {
			return fmt.Errorf("record limit must be between 1 and 10000, got %d", limit)
		}
		s.recordLimit = limit
		return nil
	})
}

// KinesisSource is a LogSource backed by a Kinesis data stream. Partitions are shards and
// resumption tokens are shard iterators.
type KinesisSource struct {
	client      KinesisClient
	limiter     *rate.Limiter
	recordLimit int32
}

func NewKinesisSource(client KinesisClient, options ...SourceOption) (*KinesisSource, error) {
	settings := sourceSettings{limiter: rate.NewLimiter(DefaultGetRecordsRate, DefaultGetRecordsBurst)}
	if err := helpers.ApplyOptions[sourceSettings, SourceOption](&settings, options...); err != nil {
		return nil, err
	}
	return &KinesisSource{client: client, limiter: settings.limiter, recordLimit: settings.recordLimit}, nil
}

// ListPartitions returns the IDs of every shard of the stream, following pagination.
func (s *KinesisSource) ListPartitions(ctx context.Context, stream string) ([]string, error) {
	var ret []string
	input := &kinesis.ListShardsInput{StreamName: aws.String(stream)}
	for {
		out, err := s.client.ListShards(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, shard := range out.Shards {
			ret = append(ret, aws.ToString(shard.ShardId))
		}
		if aws.ToString(out.NextToken) == "" {
			return ret, nil
		}
		// StreamName must not be combined with NextToken.
		input = &kinesis.ListShardsInput{NextToken: out.NextToken}
	}
}

// FetchRecords gets one batch of records from a shard. Positions other than AfterToken
// first obtain a shard iterator.
func (s *KinesisSource) FetchRecords(
	ctx context.Context,
	stream, partition string,
	position Position,
) (FetchResult, error) {
	iterator := position.Token
	if position.Kind != PositionAfterToken {
		input := &kinesis.GetShardIteratorInput{
			StreamName:        aws.String(stream),
			ShardId:           aws.String(partition),
			ShardIteratorType: types.ShardIteratorTypeTrimHorizon,
		}
		if position.Kind == PositionAtTimestamp {
			input.ShardIteratorType = types.ShardIteratorTypeAtTimestamp
			input.Timestamp = aws.Time(position.Timestamp)
		}
		out, err := s.client.GetShardIterator(ctx, input)
		if err != nil {
			return FetchResult{}, err
		}
		iterator = aws.ToString(out.ShardIterator)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return FetchResult{}, err
	}
	input := &kinesis.GetRecordsInput{ShardIterator: aws.String(iterator)}
	if s.recordLimit > 0 {
		input.Limit = aws.Int32(s.recordLimit)
	}
	out, err := s.client.GetRecords(ctx, input)
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Records: out.Records, NextToken: aws.ToString(out.NextShardIterator)}, nil
}
