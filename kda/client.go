// Package kda controls and inspects Kinesis Data Analytics (SQL) applications: it resolves an
// application's input and output streams and drives the application to a running or stopped
// state before a test starts.
package kda

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics"
)

// DescribeClient is the subset of *kinesisanalytics.Client needed to describe applications.
type DescribeClient interface {
	DescribeApplication(
		ctx context.Context,
		params *kinesisanalytics.DescribeApplicationInput,
		optFns ...func(*kinesisanalytics.Options),
	) (*kinesisanalytics.DescribeApplicationOutput, error)
}

// Client is the subset of *kinesisanalytics.Client used by LifecycleManager.
type Client interface {
	DescribeClient
	StartApplication(
		ctx context.Context,
		params *kinesisanalytics.StartApplicationInput,
		optFns ...func(*kinesisanalytics.Options),
	) (*kinesisanalytics.StartApplicationOutput, error)
	StopApplication(
		ctx context.Context,
		params *kinesisanalytics.StopApplicationInput,
		optFns ...func(*kinesisanalytics.Options),
	) (*kinesisanalytics.StopApplicationOutput, error)
}
