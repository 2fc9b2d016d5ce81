package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPublishInterval is how often Watch checks its source for new records.
const DefaultPublishInterval = time.Second

// Source is anything that accumulates output records, such as an outputs.OutputCache.
type Source[T any] interface {
	Records() []T
	Err() error
}

// Watch publishes the records of source under name until ctx is done. Records are published
// in the order the source accumulated them, each one once. The returned channel is closed
// when publishing stops.
func Watch[T any](ctx context.Context, server *Server, name string, source Source[T], interval time.Duration) (<-chan struct{}, error) {
	f, err := server.feedFor(name)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		published := 0
		check := func() {
			records := source.Records()
			if len(records) < published {
				published = len(records)
			}
			fresh := make([]json.RawMessage, 0, len(records)-published)
			for _, r := range records[published:] {
				data, err := json.Marshal(r)
				if err != nil {
					data, _ = json.Marshal(fmt.Sprintf("%+v", r))
				}
				fresh = append(fresh, data)
			}
			published = len(records)
			server.publish(f, fresh, source.Err())
		}
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
	return done, nil
}
