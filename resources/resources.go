// Package resources identifies the AWS resources that a Kinesis Data Analytics application
// reads from and writes to.
package resources

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

// AwsResource is a parsed Amazon Resource Name.
type AwsResource struct {
	// ARN is the full resource name as it was parsed.
	ARN string
	// Partition is the AWS partition, normally "aws".
	Partition string
	// Service is the AWS service namespace, for instance "kinesis" or "firehose".
	Service string
	Region  string
	// AccountID is the owning account.
	AccountID string
	// Resource is the resource name with its type prefix and any qualifier removed, so
	// "stream/weather-input" becomes "weather-input".
	Resource string
}

// ParseAwsResource parses an ARN such as "arn:aws:kinesis:us-east-1:123456789012:stream/name".
func ParseAwsResource(value string) (AwsResource, error) {
	if value == "" {
		return AwsResource{}, errors.New("resource ARN is empty")
	}
	parsed, err := arn.Parse(value)
	if err != nil {
		return AwsResource{}, fmt.Errorf("invalid resource ARN %q: %w", value, err)
	}
	return AwsResource{
		ARN:       value,
		Partition: parsed.Partition,
		Service:   parsed.Service,
		Region:    parsed.Region,
		AccountID: parsed.AccountID,
		Resource:  resourceName(parsed.Resource),
	}, nil
}

// MustParseAwsResource is ParseAwsResource for constant ARNs; it panics on failure.
func MustParseAwsResource(value string) AwsResource {
	r, err := ParseAwsResource(value)
	if err != nil {
		panic(err)
	}
	return r
}

func resourceName(resource string) string {
	// Resource types are separated by "/" for most services and ":" for Lambda
	// ("function:name:qualifier").
	if i := strings.IndexAny(resource, "/:"); i >= 0 {
		resource = resource[i+1:]
	}
	if i := strings.IndexAny(resource, "/:"); i >= 0 {
		resource = resource[:i]
	}
	return resource
}

func (r AwsResource) String() string { return r.ARN }
