package outputs

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/aws/smithy-go"
)

// DecodeError means a raw record could not be translated to the reader's value type.
type DecodeError struct {
	Stream         string
	Partition      string
	SequenceNumber string
	Err            error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode record %s from %s/%s: %s", e.SequenceNumber, e.Stream, e.Partition, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FetchError means listing partitions or fetching records failed. Partition is empty if
// the listing failed.
type FetchError struct {
	Stream    string
	Partition string
	Position  Position
	Err       error
}

func (e *FetchError) Error() string {
	if e.Partition == "" {
		return fmt.Sprintf("could not list partitions of %s: %s", e.Stream, e.Err)
	}
	return fmt.Sprintf("could not fetch records from %s/%s (%s): %s", e.Stream, e.Partition, e.Position, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Expired returns true if the fetch failed because its resumption token had expired.
func (e *FetchError) Expired() bool {
	var expired *types.ExpiredIteratorException
	return errors.As(e.Err, &expired) || e.Code() == "ExpiredIteratorException"
}

// Code returns the AWS error code of the underlying failure, if it was an AWS API error.
func (e *FetchError) Code() string {
	var apiErr smithy.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
