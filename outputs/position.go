package outputs

import (
	"fmt"
	"time"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/opt"
)

// PositionKind says how a Position locates the first record to fetch.
type PositionKind int

const (
	// PositionAfterToken resumes from a token returned by a previous fetch.
	PositionAfterToken PositionKind = iota
	// PositionOldest starts from the oldest record still retained by the stream.
	PositionOldest
	// PositionAtTimestamp starts from the first record that arrived at or after a time.
	PositionAtTimestamp
)

// Position is where a fetch from a partition begins.
type Position struct {
	Kind      PositionKind
	Token     string
	Timestamp time.Time
}

func AfterToken(token string) Position { return Position{Kind: PositionAfterToken, Token: token} }

func Oldest() Position { return Position{Kind: PositionOldest} }

func AtTimestamp(t time.Time) Position { return Position{Kind: PositionAtTimestamp, Timestamp: t} }

// InitialPosition is the position used for a partition that has never been read.
func InitialPosition(config ReaderConfiguration) Position {
	if startTime, ok := config.StartTime.Get(); ok {
		return AtTimestamp(startTime)
	}
	return Oldest()
}

func (p Position) String() string {
	switch p.Kind {
	case PositionOldest:
		return "oldest"
	case PositionAtTimestamp:
		return "at " + p.Timestamp.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("after token %.12s...", p.Token)
	}
}

// ReaderConfiguration controls where a reader starts in partitions it has not read before.
type ReaderConfiguration struct {
	// StartTime, if defined, makes new partitions start at the first record that arrived at
	// or after that time. Otherwise they start from the oldest retained record.
	StartTime opt.Maybe[time.Time]
}

// StartingAt returns a configuration with the given start time.
func StartingAt(t time.Time) ReaderConfiguration {
	return ReaderConfiguration{StartTime: opt.Some(t)}
}
