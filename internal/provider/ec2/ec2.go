// Package ec2 lists and powers EC2 instances tagged with a schedule.
package ec2

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// ProviderName identifies EC2 resources in records and metrics
const ProviderName = "ec2"

const idSeparator = ":"

// ErrInvalidID is returned for ids not in <region>:<instance-id> form
var ErrInvalidID = errors.New("invalid ec2 resource id")

// API is the subset of the EC2 client used by the provider
type API interface {
	awsec2.DescribeInstancesAPIClient
	DescribeRegions(ctx context.Context, params *awsec2.DescribeRegionsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeRegionsOutput, error)
	StartInstances(ctx context.Context, params *awsec2.StartInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *awsec2.StopInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.StopInstancesOutput, error)
}

// ClientFactory returns a client bound to region
type ClientFactory func(region string) API

// FormatID returns the resource id of an instance
func FormatID(region, instanceID string) string {
	return region + idSeparator + instanceID
}

// ParseID splits a resource id into region and instance id
func ParseID(id string) (region, instanceID string, err error) {
	region, instanceID, ok := strings.Cut(id, idSeparator)
	if !ok || region == "" || instanceID == "" || strings.Contains(instanceID, idSeparator) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return region, instanceID, nil
}

// runningState maps an instance state to a running flag. Nil means the
// instance must be ignored.
func runningState(state *types.InstanceState) *bool {
	if state == nil {
		return nil
	}
	on, off := true, false
	switch state.Name {
	case types.InstanceStateNamePending, types.InstanceStateNameRunning, "rebooting":
		return &on
	case types.InstanceStateNameStopping, types.InstanceStateNameStopped:
		return &off
	default:
		return nil
	}
}

// scheduleTag returns the trimmed value of the tag named key
func scheduleTag(tags []types.Tag, key string) string {
	var value string
	for _, tag := range tags {
		if aws.ToString(tag.Key) == key {
			value = strings.TrimSpace(aws.ToString(tag.Value))
		}
	}
	return value
}

// Actuator starts and stops one instance
type Actuator struct {
	client     API
	instanceID string
}

// Start implements resource.Actuator
func (a *Actuator) Start(ctx context.Context) error {
	_, err := a.client.StartInstances(ctx, &awsec2.StartInstancesInput{
		InstanceIds: []string{a.instanceID},
	})
	if err != nil {
		return fmt.Errorf("failed to start instance %s: %w", a.instanceID, err)
	}
	return nil
}

// Stop implements resource.Actuator
func (a *Actuator) Stop(ctx context.Context) error {
	_, err := a.client.StopInstances(ctx, &awsec2.StopInstancesInput{
		InstanceIds: []string{a.instanceID},
	})
	if err != nil {
		return fmt.Errorf("failed to stop instance %s: %w", a.instanceID, err)
	}
	return nil
}
