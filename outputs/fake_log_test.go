package outputs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

type fetchCall struct {
	partition string
	position  Position
}

// fakeLog is an in-memory LogSource. Tokens have the form "partition#index".
type fakeLog struct {
	partitions []string
	records    map[string][]types.Record
	closed     map[string]bool
	fetches    []fetchCall
	listErr    error
	fetchErr   error
	lock       sync.Mutex
}

func newFakeLog(partitions ...string) *fakeLog {
	return &fakeLog{partitions: partitions, records: make(map[string][]types.Record), closed: make(map[string]bool)}
}

func (f *fakeLog) add(partition string, data ...string) {
	f.addAt(partition, time.Now(), data...)
}

func (f *fakeLog) addAt(partition string, arrival time.Time, data ...string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, d := range data {
		seq := strconv.Itoa(len(f.records[partition]))
		f.records[partition] = append(f.records[partition], types.Record{
			Data:                        []byte(d),
			PartitionKey:                aws.String("0"),
			SequenceNumber:              aws.String(seq),
			ApproximateArrivalTimestamp: aws.Time(arrival),
		})
	}
}

func (f *fakeLog) fetchCalls() []fetchCall {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]fetchCall(nil), f.fetches...)
}

func (f *fakeLog) ListPartitions(ctx context.Context, stream string) ([]string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.partitions...), nil
}

func (f *fakeLog) FetchRecords(ctx context.Context, stream, partition string, position Position) (FetchResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.fetches = append(f.fetches, fetchCall{partition, position})
	if f.fetchErr != nil {
		return FetchResult{}, f.fetchErr
	}
	all := f.records[partition]
	start := 0
	switch position.Kind {
	case PositionAfterToken:
		i := strings.LastIndex(position.Token, "#")
		if i < 0 || position.Token[:i] != partition {
			return FetchResult{}, fmt.Errorf("bad token %q for %s", position.Token, partition)
		}
		start, _ = strconv.Atoi(position.Token[i+1:])
	case PositionAtTimestamp:
		for start < len(all) && all[start].ApproximateArrivalTimestamp.Before(position.Timestamp) {
			start++
		}
	}
	next := fmt.Sprintf("%s#%d", partition, len(all))
	if f.closed[partition] {
		next = ""
	}
	return FetchResult{Records: append([]types.Record(nil), all[start:]...), NextToken: next}, nil
}
