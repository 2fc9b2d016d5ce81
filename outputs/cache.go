package outputs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework"
	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
)

// DefaultRefreshInterval is how often an OutputCache polls its reader unless configured otherwise.
const DefaultRefreshInterval = 2500 * time.Millisecond

// ErrorHandler receives errors from an OutputCache's background refreshes.
type ErrorHandler func(err error)

type cacheSettings struct {
	interval     time.Duration
	errorHandler ErrorHandler
	debugLogger  framework.Logger
}

// CacheOption is an option for NewOutputCache.
type CacheOption helpers.ConfigOption[cacheSettings]

// RefreshInterval sets how often the cache polls its reader. It must be positive.
func RefreshInterval(interval time.Duration) CacheOption {
	return helpers.ConfigOptionFunc[cacheSettings](func(s *cacheSettings) error {
		if interval <= 0 {
			return fmt.Errorf("refresh interval must be positive, got %s", interval)
		}
		s.interval = interval
		return nil
	})
}

// CacheErrorHandler replaces the default handling of refresh errors. The handler is called
// from the cache's background goroutine, and the cache keeps polling after it returns.
func CacheErrorHandler(handler ErrorHandler) CacheOption {
	return helpers.ConfigOptionFunc[cacheSettings](func(s *cacheSettings) error {
		s.errorHandler = handler
		return nil
	})
}

// CacheLogger sets a logger for debug output about each refresh.
func CacheLogger(logger framework.Logger) CacheOption {
	return helpers.ConfigOptionFunc[cacheSettings](func(s *cacheSettings) error {
		s.debugLogger = logger
		return nil
	})
}

// OutputCache accumulates every value returned by a Reader. It polls the reader once when it
// is created and then periodically on a background goroutine until it is cancelled.
//
// By default, a refresh error is recorded and reported by Err and Poll until a later refresh
// succeeds; polling continues either way. CacheErrorHandler replaces this behavior.
type OutputCache[T any] struct {
	reader       Reader[T]
	records      []T
	lastErr      error
	lock         sync.RWMutex
	refreshLock  sync.Mutex
	interval     time.Duration
	errorHandler ErrorHandler
	debugLogger  framework.Logger
	closer       chan struct{}
	closeOnce    sync.Once
	done         chan struct{}
}

// NewOutputCache creates a cache over reader and performs the first refresh synchronously.
// If that refresh fails and no CacheErrorHandler was given, the error is returned and no
// cache is created.
//
// The background goroutine stops when the cache is cancelled or ctx is done.
func NewOutputCache[T any](ctx context.Context, reader Reader[T], options ...CacheOption) (*OutputCache[T], error) {
	settings := cacheSettings{interval: DefaultRefreshInterval}
	if err := helpers.ApplyOptions[cacheSettings, CacheOption](&settings, options...); err != nil {
		return nil, err
	}
	c := &OutputCache[T]{
		reader:       reader,
		records:      make([]T, 0),
		interval:     settings.interval,
		errorHandler: settings.errorHandler,
		debugLogger:  framework.LoggerOrNull(settings.debugLogger),
		closer:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	if err := c.Refresh(ctx); err != nil {
		if c.errorHandler == nil {
			return nil, err
		}
		c.errorHandler(err)
	}
	go c.run(ctx)
	return c, nil
}

func (c *OutputCache[T]) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closer:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-c.closer:
				return // cancelled while the tick was pending
			default:
			}
			if err := c.Refresh(ctx); err != nil {
				c.handleError(err)
			}
		}
	}
}

func (c *OutputCache[T]) handleError(err error) {
	if c.errorHandler != nil {
		c.errorHandler(err)
		return
	}
	c.debugLogger.Printf("Refresh failed: %s", err)
	c.lock.Lock()
	c.lastErr = err
	c.lock.Unlock()
}

// Refresh polls the reader once and appends whatever it returns. Values from one poll become
// visible to Records all at once. Concurrent calls are serialized.
func (c *OutputCache[T]) Refresh(ctx context.Context) error {
	c.refreshLock.Lock()
	defer c.refreshLock.Unlock()
	values, err := c.reader.Poll(ctx)
	if err != nil {
		return err
	}
	c.lock.Lock()
	c.records = append(c.records, values...)
	c.lastErr = nil
	total := len(c.records)
	c.lock.Unlock()
	if len(values) != 0 {
		c.debugLogger.Printf("Accumulated %d new records (%d total)", len(values), total)
	}
	return nil
}

// Records returns a copy of every value accumulated so far, in the order received.
func (c *OutputCache[T]) Records() []T {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return helpers.CopyOf(c.records)
}

// Len returns the number of values accumulated so far.
func (c *OutputCache[T]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.records)
}

// Err returns the error from the most recent background refresh, or nil if it succeeded.
// It is always nil when a CacheErrorHandler was given.
func (c *OutputCache[T]) Err() error {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.lastErr
}

// Poll returns the accumulated values along with Err(). It does not trigger a refresh.
func (c *OutputCache[T]) Poll(context.Context) ([]T, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return helpers.CopyOf(c.records), c.lastErr
}

// SetConfiguration passes the configuration to the underlying reader.
func (c *OutputCache[T]) SetConfiguration(config ReaderConfiguration) {
	c.reader.SetConfiguration(config)
}

// Cancel stops future refreshes. A refresh already in progress is allowed to finish, and the
// accumulated values remain readable. Calling Cancel more than once has no further effect.
func (c *OutputCache[T]) Cancel() {
	c.closeOnce.Do(func() { close(c.closer) })
}

// Done returns a channel that is closed once the background goroutine has exited.
func (c *OutputCache[T]) Done() <-chan struct{} { return c.done }
