package kda

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics/types"
)

// DetailSource provides the current description of an application.
type DetailSource interface {
	Describe(ctx context.Context) (*types.ApplicationDetail, error)
}

// ApplicationSource describes an application through the Kinesis Data Analytics API on
// every call.
type ApplicationSource struct {
	client DescribeClient
	name   string
}

func NewApplicationSource(client DescribeClient, applicationName string) *ApplicationSource {
	return &ApplicationSource{client: client, name: applicationName}
}

// ApplicationName returns the name of the described application.
func (s *ApplicationSource) ApplicationName() string { return s.name }

func (s *ApplicationSource) Describe(ctx context.Context) (*types.ApplicationDetail, error) {
	out, err := s.client.DescribeApplication(ctx, &kinesisanalytics.DescribeApplicationInput{
		ApplicationName: aws.String(s.name),
	})
	if err != nil {
		return nil, fmt.Errorf("could not describe application %s: %w", s.name, err)
	}
	if out.ApplicationDetail == nil {
		return nil, errors.New("application " + s.name + " was described without details")
	}
	return out.ApplicationDetail, nil
}

// DescribeOnce remembers the first successful description from its source. Failures are not
// remembered, so a later call tries again.
type DescribeOnce struct {
	source DetailSource
	detail *types.ApplicationDetail
	lock   sync.Mutex
}

func NewDescribeOnce(source DetailSource) *DescribeOnce {
	return &DescribeOnce{source: source}
}

// Describe returns the remembered description, describing the application first if needed.
// Concurrent callers wait for a single describe call.
func (d *DescribeOnce) Describe(ctx context.Context) (*types.ApplicationDetail, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.detail != nil {
		return d.detail, nil
	}
	detail, err := d.source.Describe(ctx)
	if err != nil {
		return nil, err
	}
	d.detail = detail
	return detail, nil
}

// Invalidate forgets the remembered description, for instance after the application has
// been reconfigured.
func (d *DescribeOnce) Invalidate() {
	d.lock.Lock()
	d.detail = nil
	d.lock.Unlock()
}
