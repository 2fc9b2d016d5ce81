package kda

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisanalytics/types"

	"github.com/Nuvalence/kinesis-quality-toolkit/resources"
)

// IOProvider resolves the streams an application reads from and writes to. The application
// is described once and the description is reused.
type IOProvider struct {
	source *DescribeOnce
}

func NewIOProvider(source DetailSource) *IOProvider {
	if once, ok := source.(*DescribeOnce); ok {
		return &IOProvider{source: once}
	}
	return &IOProvider{source: NewDescribeOnce(source)}
}

// Input returns the Kinesis stream of the application's first input.
func (p *IOProvider) Input(ctx context.Context) (resources.AwsResource, error) {
	detail, err := p.source.Describe(ctx)
	if err != nil {
		return resources.AwsResource{}, err
	}
	if len(detail.InputDescriptions) == 0 {
		return resources.AwsResource{}, fmt.Errorf("application %s has no inputs", aws.ToString(detail.ApplicationName))
	}
	input := detail.InputDescriptions[0]
	if input.KinesisStreamsInputDescription == nil {
		return resources.AwsResource{}, fmt.Errorf("input %s of application %s is not a Kinesis stream",
			aws.ToString(input.NamePrefix), aws.ToString(detail.ApplicationName))
	}
	return resources.ParseAwsResource(aws.ToString(input.KinesisStreamsInputDescription.ResourceARN))
}

// Output returns the destination of the output with the given name. Names are matched
// without regard to case.
func (p *IOProvider) Output(ctx context.Context, name string) (resources.AwsResource, error) {
	detail, err := p.source.Describe(ctx)
	if err != nil {
		return resources.AwsResource{}, err
	}
	for _, output := range detail.OutputDescriptions {
		if !strings.EqualFold(aws.ToString(output.Name), name) {
			continue
		}
		arn := destinationARN(output)
		if arn == "" {
			return resources.AwsResource{}, fmt.Errorf("output %s of application %s has no supported destination",
				aws.ToString(output.Name), aws.ToString(detail.ApplicationName))
		}
		return resources.ParseAwsResource(arn)
	}
	return resources.AwsResource{}, fmt.Errorf("application %s has no output named %q (available outputs: %s)",
		aws.ToString(detail.ApplicationName), name, strings.Join(outputNames(detail), ", "))
}

// Outputs returns the names of the application's outputs.
func (p *IOProvider) Outputs(ctx context.Context) ([]string, error) {
	detail, err := p.source.Describe(ctx)
	if err != nil {
		return nil, err
	}
	return outputNames(detail), nil
}

func outputNames(detail *types.ApplicationDetail) []string {
	ret := make([]string, 0, len(detail.OutputDescriptions))
	for _, output := range detail.OutputDescriptions {
		ret = append(ret, aws.ToString(output.Name))
	}
	return ret
}

func destinationARN(output types.OutputDescription) string {
	switch {
	case output.KinesisStreamsOutputDescription != nil:
		return aws.ToString(output.KinesisStreamsOutputDescription.ResourceARN)
	case output.KinesisFirehoseOutputDescription != nil:
		return aws.ToString(output.KinesisFirehoseOutputDescription.ResourceARN)
	case output.LambdaOutputDescription != nil:
		return aws.ToString(output.LambdaOutputDescription.ResourceARN)
	default:
		return ""
	}
}
