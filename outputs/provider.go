package outputs

import (
	"context"
	"fmt"
	"sync"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
	"github.com/Nuvalence/kinesis-quality-toolkit/resources"
)

// ReaderProvider supplies the log behind an application output. Implement it to read
// outputs from somewhere other than Kinesis data streams.
type ReaderProvider interface {
	LogFor(resource resources.AwsResource) (LogSource, error)
}

// KinesisReaderProvider reads outputs that are Kinesis data streams. It creates one
// KinesisSource per stream, so every reader of a stream shares its rate limit.
type KinesisReaderProvider struct {
	client  KinesisClient
	options []SourceOption
	sources map[string]*KinesisSource
	lock    sync.Mutex
}

func NewKinesisReaderProvider(client KinesisClient, options ...SourceOption) *KinesisReaderProvider {
	return &KinesisReaderProvider{client: client, options: options, sources: make(map[string]*KinesisSource)}
}

func (p *KinesisReaderProvider) LogFor(resource resources.AwsResource) (LogSource, error) {
	if resource.Service != "kinesis" {
		return nil, fmt.Errorf("cannot read from %s: only Kinesis data streams can be read", resource.ARN)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if source, ok := p.sources[resource.Resource]; ok {
		return source, nil
	}
	source, err := NewKinesisSource(p.client, p.options...)
	if err != nil {
		return nil, err
	}
	p.sources[resource.Resource] = source
	return source, nil
}

// OpenOutput creates an OutputCache that accumulates the values of the output resource,
// read through provider and decoded with translator.
func OpenOutput[T any](
	ctx context.Context,
	provider ReaderProvider,
	resource resources.AwsResource,
	translator RecordTranslator[T],
	config ReaderConfiguration,
	options ...CacheOption,
) (*OutputCache[T], error) {
	source, err := provider.LogFor(resource)
	if err != nil {
		return nil, err
	}
	var settings cacheSettings
	if err := helpers.ApplyOptions[cacheSettings, CacheOption](&settings, options...); err != nil {
		return nil, err
	}
	logger := framework.LoggerWithPrefix(settings.debugLogger, "["+resource.Resource+"] ")
	reader, err := NewStreamReader(resource.Resource, source, translator, ReaderConfig(config), ReaderLogger(logger))
	if err != nil {
		return nil, err
	}
	return NewOutputCache[T](ctx, reader, append(helpers.CopyOf(options), CacheLogger(logger))...)
}
