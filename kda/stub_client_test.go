package kda

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics/types"
)

// stubClient reports a scripted sequence of statuses; the last one repeats.
type stubClient struct {
	statuses    []types.ApplicationStatus
	inputs      []types.InputDescription
	outputs     []types.OutputDescription
	describeErr error
	commandErr  error
	describes   int
	starts      []*kinesisanalytics.StartApplicationInput
	stops       []*kinesisanalytics.StopApplicationInput
	lock        sync.Mutex
}

func (c *stubClient) DescribeApplication(
	ctx context.Context,
	params *kinesisanalytics.DescribeApplicationInput,
	optFns ...func(*kinesisanalytics.Options),
) (*kinesisanalytics.DescribeApplicationOutput, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.describes++
	if c.describeErr != nil {
		return nil, c.describeErr
	}
	status := types.ApplicationStatusReady
	if len(c.statuses) != 0 {
		i := c.describes - 1
		if i >= len(c.statuses) {
			i = len(c.statuses) - 1
		}
		status = c.statuses[i]
	}
	return &kinesisanalytics.DescribeApplicationOutput{ApplicationDetail: &types.ApplicationDetail{
		ApplicationName:    params.ApplicationName,
		ApplicationStatus:  status,
		InputDescriptions:  c.inputs,
		OutputDescriptions: c.outputs,
	}}, nil
}

func (c *stubClient) StartApplication(
	ctx context.Context,
	params *kinesisanalytics.StartApplicationInput,
	optFns ...func(*kinesisanalytics.Options),
) (*kinesisanalytics.StartApplicationOutput, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.starts = append(c.starts, params)
	return &kinesisanalytics.StartApplicationOutput{}, c.commandErr
}

func (c *stubClient) StopApplication(
	ctx context.Context,
	params *kinesisanalytics.StopApplicationInput,
	optFns ...func(*kinesisanalytics.Options),
) (*kinesisanalytics.StopApplicationOutput, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.stops = append(c.stops, params)
	return &kinesisanalytics.StopApplicationOutput{}, c.commandErr
}

func streamInput(id, prefix, arn string) types.InputDescription {
	return types.InputDescription{
		InputId:                        aws.String(id),
		NamePrefix:                     aws.String(prefix),
		KinesisStreamsInputDescription: &types.KinesisStreamsInputDescription{ResourceARN: aws.String(arn)},
	}
}

func streamOutput(name, arn string) types.OutputDescription {
	return types.OutputDescription{
		Name:                            aws.String(name),
		KinesisStreamsOutputDescription: &types.KinesisStreamsOutputDescription{ResourceARN: aws.String(arn)},
	}
}
