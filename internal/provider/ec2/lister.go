package ec2

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/t77yq/power-scheduler/internal/resource"
)

const regionConcurrency = 4

// Lister reports the instances carrying the schedule tag
type Lister struct {
	logger        *zap.Logger
	clients       ClientFactory
	tag           string
	regions       []string
	defaultRegion string
}

// NewLister creates a lister. With no regions, every region enabled for the
// account is listed, discovered through defaultRegion.
func NewLister(clients ClientFactory, tag string, regions []string, defaultRegion string, logger *zap.Logger) *Lister {
	return &Lister{
		logger:        logger.Named("ec2"),
		clients:       clients,
		tag:           tag,
		regions:       regions,
		defaultRegion: defaultRegion,
	}
}

// Name implements scheduler.Lister
func (l *Lister) Name() string {
	return ProviderName
}

// List implements scheduler.Lister. A failing region is logged and skipped;
// List fails only when no region could be listed.
func (l *Lister) List(ctx context.Context) ([]resource.Candidate, error) {
	regions, err := l.listRegions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu         sync.Mutex
		candidates []resource.Candidate
		errs       []error
	)
	g := new(errgroup.Group)
	g.SetLimit(regionConcurrency)
	for _, region := range regions {
		g.Go(func() error {
			found, err := l.listRegion(ctx, region)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.logger.Error("Failed to list instances",
					zap.String("region", region),
					zap.Error(err))
				errs = append(errs, err)
				return nil
			}
			candidates = append(candidates, found...)
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 && len(errs) == len(regions) {
		return nil, errors.Join(errs...)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates, nil
}

func (l *Lister) listRegions(ctx context.Context) ([]string, error) {
	if len(l.regions) > 0 {
		return l.regions, nil
	}

	out, err := l.clients(l.defaultRegion).DescribeRegions(ctx, &awsec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if name := aws.ToString(r.RegionName); name != "" {
			regions = append(regions, name)
		}
	}
	return regions, nil
}

func (l *Lister) listRegion(ctx context.Context, region string) ([]resource.Candidate, error) {
	client := l.clients(region)
	paginator := awsec2.NewDescribeInstancesPaginator(client, &awsec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag-key"), Values: []string{l.tag}},
		},
	})

	var candidates []resource.Candidate
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances in %s: %w", region, err)
		}

		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				instanceID := aws.ToString(instance.InstanceId)
				if instanceID == "" {
					continue
				}

				c := resource.Candidate{
					ID:       FormatID(region, instanceID),
					Provider: ProviderName,
					Running:  runningState(instance.State),
					Schedule: scheduleTag(instance.Tags, l.tag),
					Actuator: &Actuator{client: client, instanceID: instanceID},
				}
				l.logger.Debug("Instance listed",
					zap.String("resource_id", c.ID),
					zap.Any("running", c.Running),
					zap.String("schedule", c.Schedule))
				candidates = append(candidates, c)
			}
		}
	}
	return candidates, nil
}
