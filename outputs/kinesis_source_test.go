package outputs

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	m "github.com/launchdarkly/go-test-helpers/v2/matchers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
	"github.com/Nuvalence/kinesis-quality-toolkit/mockaws"
	"github.com/Nuvalence/kinesis-quality-toolkit/resources"
)

type temperature struct {
	PostalCode string  `json:"POSTAL_CODE"`
	Average    float64 `json:"AVERAGE"`
}

func withMockKinesis(t *testing.T, action func(service *mockaws.KinesisService, client *kinesis.Client)) {
	testLog := ldlogtest.NewMockLog()
	testLog.Loggers.SetMinLevel(ldlog.Debug)
	defer testLog.DumpIfTestFailed(t)

	service := mockaws.NewKinesisService(testLog.Loggers.ForLevel(ldlog.Debug))
	httphelpers.WithServer(service, func(server *httptest.Server) {
		action(service, kinesis.NewFromConfig(mockaws.NewAWSConfig(server.URL)))
	})
}

func newUnlimitedSource(t *testing.T, client KinesisClient, options ...SourceOption) *KinesisSource {
	source, err := NewKinesisSource(client, append(options, SourceRateLimit(rate.Inf, 1))...)
	require.NoError(t, err)
	return source
}

func TestKinesisSourceListsEveryPage(t *testing.T) {
	withMockKinesis(t, func(service *mockaws.KinesisService, client *kinesis.Client) {
		service.CreateStream(testStream, 5)
		service.SetShardPageSize(2)

		partitions, err := newUnlimitedSource(t, client).ListPartitions(context.Background(), testStream)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"shardId-000000000000", "shardId-000000000001", "shardId-000000000002",
			"shardId-000000000003", "shardId-000000000004",
		}, partitions)
		assert.Equal(t, []string{"ListShards", "ListShards", "ListShards"}, service.Operations())
	})
}

func TestKinesisSourceFetchesFromEachKindOfPosition(t *testing.T) {
	withMockKinesis(t, func(service *mockaws.KinesisService, client *kinesis.Client) {
		service.CreateStream(testStream, 1)
		start := time.Now().Truncate(time.Millisecond)
		service.AddRecordsAt(testStream, 0, start.Add(-time.Minute), []byte("old"))
		service.AddRecordsAt(testStream, 0, start.Add(time.Second), []byte("new"))
		source := newUnlimitedSource(t, client)
		ctx := context.Background()

		oldest, err := source.FetchRecords(ctx, testStream, "shardId-000000000000", Oldest())
		require.NoError(t, err)
		assert.Len(t, oldest.Records, 2)
		assert.NotEqual(t, "", oldest.NextToken)

		recent, err := source.FetchRecords(ctx, testStream, "shardId-000000000000", AtTimestamp(start))
		require.NoError(t, err)
		require.Len(t, recent.Records, 1)
		assert.Equal(t, []byte("new"), recent.Records[0].Data)

		service.AddRecords(testStream, 0, []byte("newer"))
		resumed, err := source.FetchRecords(ctx, testStream, "shardId-000000000000", AfterToken(oldest.NextToken))
		require.NoError(t, err)
		require.Len(t, resumed.Records, 1)
		assert.Equal(t, []byte("newer"), resumed.Records[0].Data)

		assert.Equal(t, []string{"GetShardIterator", "GetRecords", "GetShardIterator", "GetRecords", "GetRecords"},
			service.Operations())
	})
}

func TestKinesisSourceRecordLimit(t *testing.T) {
	_, err := NewKinesisSource(nil, SourceRecordLimit(0))
	assert.Error(t, err)

	withMockKinesis(t, func(service *mockaws.KinesisService, client *kinesis.Client) {
		service.CreateStream(testStream, 1)
		service.AddRecords(testStream, 0, []byte("a"), []byte("b"), []byte("c"))
		source := newUnlimitedSource(t, client, SourceRecordLimit(2))

		result, err := source.FetchRecords(context.Background(), testStream, "shardId-000000000000", Oldest())
		require.NoError(t, err)
		assert.Len(t, result.Records, 2)
	})
}

func TestKinesisSourceRateLimitHonoursContext(t *testing.T) {
	withMockKinesis(t, func(service *mockaws.KinesisService, client *kinesis.Client) {
		service.CreateStream(testStream, 1)
		source, err := NewKinesisSource(client, SourceRateLimit(rate.Every(time.Hour), 1))
		require.NoError(t, err)

		first, err := source.FetchRecords(context.Background(), testStream, "shardId-000000000000", Oldest())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = source.FetchRecords(ctx, testStream, "shardId-000000000000", AfterToken(first.NextToken))
		assert.Error(t, err)
	})
}

func TestStreamReaderOverKinesisReportsExpiredIterator(t *testing.T) {
	withMockKinesis(t, func(service *mockaws.KinesisService, client *kinesis.Client) {
		service.CreateStream(testStream, 1)
		reader, err := NewStreamReader[string](testStream, newUnlimitedSource(t, client), StringRecordTranslator())
		require.NoError(t, err)
		_, err = reader.Poll(context.Background())
		require.NoError(t, err)

		service.ExpireIterators()
		_, err = reader.Poll(context.Background())
		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.True(t, fetchErr.Expired())
		assert.Equal(t, "ExpiredIteratorException", fetchErr.Code())
	})
}

func TestOpenOutputAccumulatesStreamRecords(t *testing.T) {
	withMockKinesis(t, func(service *mockaws.KinesisService, client *kinesis.Client) {
		service.CreateStream(testStream, 2)
		service.AddRecords(testStream, 0, []byte(`{"POSTAL_CODE":"10001","AVERAGE":20.5}`))

		provider := NewKinesisReaderProvider(client, SourceRateLimit(rate.Inf, 1))
		resource := resources.MustParseAwsResource(mockaws.StreamARN(testStream))
		cache, err := OpenOutput[temperature](context.Background(), provider, resource,
			JSONRecordTranslator[temperature]{}, ReaderConfiguration{}, RefreshInterval(5*time.Millisecond))
		require.NoError(t, err)
		defer cache.Cancel()

		service.AddRecords(testStream, 1, []byte(`{"POSTAL_CODE":"94105","AVERAGE":15}`))
		helpers.RequireEventually(t, func() bool { return cache.Len() == 2 }, time.Second, 5*time.Millisecond,
			"timed out waiting for output records")
		m.In(t).Assert(cache.Records(), m.ItemsInAnyOrder(
			m.Equal(temperature{PostalCode: "10001", Average: 20.5}),
			m.Equal(temperature{PostalCode: "94105", Average: 15}),
		))
	})
}

func TestKinesisReaderProvider(t *testing.T) {
	provider := NewKinesisReaderProvider(nil)

	_, err := provider.LogFor(resources.MustParseAwsResource(mockaws.FirehoseARN("archive")))
	assert.Error(t, err)

	first, err := provider.LogFor(resources.MustParseAwsResource(mockaws.StreamARN("a")))
	require.NoError(t, err)
	second, err := provider.LogFor(resources.MustParseAwsResource(mockaws.StreamARN("a")))
	require.NoError(t, err)
	other, err := provider.LogFor(resources.MustParseAwsResource(mockaws.StreamARN("b")))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}
