package mockaws

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
)

const kinesisTargetPrefix = "Kinesis_20131202."

// DefaultShardPageSize is how many shards ListShards returns per page unless the request
// asks for fewer.
const DefaultShardPageSize = 100

type storedRecord struct {
	data           []byte
	partitionKey   string
	sequenceNumber string
	arrival        time.Time
}

type mockShard struct {
	id      string
	records []storedRecord
}

type mockStream struct {
	shards []*mockShard
}

type shardIterator struct {
	stream  string
	shard   int
	index   int
	expired bool
}

// KinesisService is a mock Kinesis data streams endpoint that keeps records in memory.
type KinesisService struct {
	streams       map[string]*mockStream
	iterators     map[string]*shardIterator
	rejectedKeys  map[string]bool
	operations    []string
	shardPageSize int
	nextSequence  int
	handler       http.Handler
	debugLogger   framework.Logger
	lock          sync.Mutex
}

func NewKinesisService(debugLogger framework.Logger) *KinesisService {
	s := &KinesisService{
		streams:       make(map[string]*mockStream),
		iterators:     make(map[string]*shardIterator),
		rejectedKeys:  make(map[string]bool),
		shardPageSize: DefaultShardPageSize,
		debugLogger:   framework.LoggerOrNull(debugLogger),
	}
	s.handler = newRouter(kinesisTargetPrefix, map[string]operationHandler{
		"ListShards":       s.listShards,
		"GetShardIterator": s.getShardIterator,
		"GetRecords":       s.getRecords,
		"PutRecords":       s.putRecords,
	}, s.debugLogger)
	return s
}

func (s *KinesisService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.operations = append(s.operations, strings.TrimPrefix(r.Header.Get(targetHeader), kinesisTargetPrefix))
	s.lock.Unlock()
	s.handler.ServeHTTP(w, r)
}

// CreateStream adds an empty stream with the given number of shards, replacing any stream
// of the same name.
func (s *KinesisService) CreateStream(name string, shardCount int) {
	stream := &mockStream{}
	for i := 0; i < shardCount; i++ {
		stream.shards = append(stream.shards, &mockShard{id: fmt.Sprintf("shardId-%012d", i)})
	}
	s.lock.Lock()
	s.streams[name] = stream
	s.lock.Unlock()
}

// AddShard adds a shard to an existing stream and returns its ID.
func (s *KinesisService) AddShard(name string) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	stream := s.streams[name]
	shard := &mockShard{id: fmt.Sprintf("shardId-%012d", len(stream.shards))}
	stream.shards = append(stream.shards, shard)
	return shard.id
}

// AddRecords appends records directly to one shard, as if the application had written them.
func (s *KinesisService) AddRecords(name string, shard int, data ...[]byte) {
	s.AddRecordsAt(name, shard, time.Now(), data...)
}

// AddRecordsAt is AddRecords with an explicit arrival time.
func (s *KinesisService) AddRecordsAt(name string, shard int, arrival time.Time, data ...[]byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	target := s.streams[name].shards[shard]
	for _, d := range data {
		s.appendRecord(target, storedRecord{data: d, partitionKey: strconv.Itoa(shard), arrival: arrival})
	}
}

func (s *KinesisService) appendRecord(shard *mockShard, record storedRecord) {
	s.nextSequence++
	record.sequenceNumber = fmt.Sprintf("%056d", s.nextSequence)
	shard.records = append(shard.records, record)
}

// Records returns the data of every record in the stream, shard by shard.
func (s *KinesisService) Records(name string) [][]byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	var ret [][]byte
	if stream, ok := s.streams[name]; ok {
		for _, shard := range stream.shards {
			for _, r := range shard.records {
				ret = append(ret, r.data)
			}
		}
	}
	return ret
}

// PartitionKeys returns the partition key of every record in the stream, shard by shard.
func (s *KinesisService) PartitionKeys(name string) []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	var ret []string
	if stream, ok := s.streams[name]; ok {
		for _, shard := range stream.shards {
			for _, r := range shard.records {
				ret = append(ret, r.partitionKey)
			}
		}
	}
	return ret
}

// ExpireIterators makes every shard iterator issued so far unusable.
func (s *KinesisService) ExpireIterators() {
	s.lock.Lock()
	for _, it := range s.iterators {
		it.expired = true
	}
	s.lock.Unlock()
}

// RejectPartitionKey makes PutRecords fail every entry with the given partition key.
func (s *KinesisService) RejectPartitionKey(key string) {
	s.lock.Lock()
	s.rejectedKeys[key] = true
	s.lock.Unlock()
}

// SetShardPageSize sets the maximum number of shards returned by one ListShards call.
func (s *KinesisService) SetShardPageSize(size int) {
	s.lock.Lock()
	s.shardPageSize = size
	s.lock.Unlock()
}

// Operations returns the names of the operations requested so far, in order.
func (s *KinesisService) Operations() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.operations...)
}

func (s *KinesisService) newIterator(stream string, shard, index int) string {
	token := uuid.NewString()
	s.iterators[token] = &shardIterator{stream: stream, shard: shard, index: index}
	return token
}

func (s *KinesisService) listShards(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreamName *string
		NextToken  *string
		MaxResults *int
	}
	if !readRequest(w, r, &req) {
		return
	}
	if req.StreamName != nil && req.NextToken != nil {
		writeError(w, http.StatusBadRequest, invalidArgument, "NextToken and StreamName cannot be provided together")
		return
	}
	streamName, offset := "", 0
	if req.NextToken != nil {
		var err error
		i := strings.LastIndex(*req.NextToken, "|")
		if i >= 0 {
			streamName = (*req.NextToken)[:i]
			offset, err = strconv.Atoi((*req.NextToken)[i+1:])
		}
		if i < 0 || err != nil {
			writeError(w, http.StatusBadRequest, invalidArgument, "invalid NextToken")
			return
		}
	} else if req.StreamName != nil {
		streamName = *req.StreamName
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	stream, ok := s.streams[streamName]
	if !ok {
		writeError(w, http.StatusBadRequest, resourceNotFound, "Stream "+streamName+" not found")
		return
	}
	pageSize := s.shardPageSize
	if req.MaxResults != nil && *req.MaxResults < pageSize {
		pageSize = *req.MaxResults
	}
	type shardJSON struct {
		ShardId             string //nolint:revive,stylecheck
		HashKeyRange        map[string]string
		SequenceNumberRange map[string]string
	}
	resp := struct {
		Shards    []shardJSON
		NextToken *string `json:",omitempty"`
	}{Shards: []shardJSON{}}
	end := offset + pageSize
	if end > len(stream.shards) {
		end = len(stream.shards)
	}
	for _, shard := range stream.shards[offset:end] {
		resp.Shards = append(resp.Shards, shardJSON{
			ShardId:             shard.id,
			HashKeyRange:        map[string]string{"StartingHashKey": "0", "EndingHashKey": "340282366920938463463374607431768211455"},
			SequenceNumberRange: map[string]string{"StartingSequenceNumber": "0"},
		})
	}
	if end < len(stream.shards) {
		token := fmt.Sprintf("%s|%d", streamName, end)
		resp.NextToken = &token
	}
	writeJSON(w, resp)
}

func (s *KinesisService) getShardIterator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreamName             string
		ShardId                string //nolint:revive,stylecheck
		ShardIteratorType      string
		StartingSequenceNumber string
		Timestamp              *float64
	}
	if !readRequest(w, r, &req) {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	stream, ok := s.streams[req.StreamName]
	if !ok {
		writeError(w, http.StatusBadRequest, resourceNotFound, "Stream "+req.StreamName+" not found")
		return
	}
	shardIndex := -1
	for i, shard := range stream.shards {
		if shard.id == req.ShardId {
			shardIndex = i
		}
	}
	if shardIndex < 0 {
		writeError(w, http.StatusBadRequest, resourceNotFound, "Shard "+req.ShardId+" not found")
		return
	}
	records := stream.shards[shardIndex].records
	index := 0
	switch req.ShardIteratorType {
	case "TRIM_HORIZON":
	case "LATEST":
		index = len(records)
	case "AT_TIMESTAMP":
		if req.Timestamp == nil {
			writeError(w, http.StatusBadRequest, invalidArgument, "Timestamp is required for AT_TIMESTAMP")
			return
		}
		at := fromEpochSeconds(*req.Timestamp)
		for index < len(records) && records[index].arrival.Before(at) {
			index++
		}
	case "AT_SEQUENCE_NUMBER", "AFTER_SEQUENCE_NUMBER":
		for index < len(records) && records[index].sequenceNumber < req.StartingSequenceNumber {
			index++
		}
		if req.ShardIteratorType == "AFTER_SEQUENCE_NUMBER" && index < len(records) &&
			records[index].sequenceNumber == req.StartingSequenceNumber {
			index++
		}
	default:
		writeError(w, http.StatusBadRequest, invalidArgument, "unsupported iterator type "+req.ShardIteratorType)
		return
	}
	writeJSON(w, map[string]string{"ShardIterator": s.newIterator(req.StreamName, shardIndex, index)})
}

func (s *KinesisService) getRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShardIterator string
		Limit         *int
	}
	if !readRequest(w, r, &req) {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	it, ok := s.iterators[req.ShardIterator]
	if !ok {
		writeError(w, http.StatusBadRequest, invalidArgument, "unknown shard iterator")
		return
	}
	if it.expired {
		writeError(w, http.StatusBadRequest, expiredIterator, "Iterator expired")
		return
	}
	stream, ok := s.streams[it.stream]
	if !ok {
		writeError(w, http.StatusBadRequest, resourceNotFound, "Stream "+it.stream+" not found")
		return
	}
	records := stream.shards[it.shard].records[it.index:]
	if req.Limit != nil && *req.Limit < len(records) {
		records = records[:*req.Limit]
	}
	type recordJSON struct {
		Data                        []byte
		PartitionKey                string
		SequenceNumber              string
		ApproximateArrivalTimestamp float64
	}
	resp := struct {
		Records            []recordJSON
		NextShardIterator  string
		MillisBehindLatest int64
	}{Records: []recordJSON{}}
	for _, record := range records {
		resp.Records = append(resp.Records, recordJSON{
			Data:                        record.data,
			PartitionKey:                record.partitionKey,
			SequenceNumber:              record.sequenceNumber,
			ApproximateArrivalTimestamp: epochSeconds(record.arrival),
		})
	}
	resp.NextShardIterator = s.newIterator(it.stream, it.shard, it.index+len(records))
	s.debugLogger.Printf("GetRecords on %s/%s returned %d records", it.stream, stream.shards[it.shard].id, len(records))
	writeJSON(w, resp)
}

func (s *KinesisService) putRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreamName string
		Records    []struct {
			Data         []byte
			PartitionKey string
		}
	}
	if !readRequest(w, r, &req) {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	stream, ok := s.streams[req.StreamName]
	if !ok || len(stream.shards) == 0 {
		writeError(w, http.StatusBadRequest, resourceNotFound, "Stream "+req.StreamName+" not found")
		return
	}
	if len(req.Records) > 500 {
		writeError(w, http.StatusBadRequest, "ValidationException", "too many records in one request")
		return
	}
	type resultJSON struct {
		SequenceNumber string `json:",omitempty"`
		ShardId        string `json:",omitempty"` //nolint:revive,stylecheck
		ErrorCode      string `json:",omitempty"`
		ErrorMessage   string `json:",omitempty"`
	}
	resp := struct {
		FailedRecordCount int
		Records           []resultJSON
	}{Records: []resultJSON{}}
	for _, entry := range req.Records {
		if s.rejectedKeys[entry.PartitionKey] {
			resp.FailedRecordCount++
			resp.Records = append(resp.Records, resultJSON{ErrorCode: throughputExceeded, ErrorMessage: "Rate exceeded for shard"})
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(entry.PartitionKey))
		shard := stream.shards[int(h.Sum32()%uint32(len(stream.shards)))]
		s.appendRecord(shard, storedRecord{data: entry.Data, partitionKey: entry.PartitionKey, arrival: time.Now()})
		resp.Records = append(resp.Records, resultJSON{
			SequenceNumber: shard.records[len(shard.records)-1].sequenceNumber,
			ShardId:        shard.id,
		})
	}
	s.debugLogger.Printf("PutRecords to %s accepted %d of %d records", req.StreamName,
		len(req.Records)-resp.FailedRecordCount, len(req.Records))
	writeJSON(w, resp)
}
