package awsec2

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awslib "opsbot/internal/aws"
	"opsbot/internal/command"
	"opsbot/internal/paginate"
	"opsbot/internal/render"
)

var instanceStates = []string{"pending", "running", "shutting-down", "terminated", "stopping", "stopped"}

type API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

type ClientFunc func(ctx context.Context, awsCtx awslib.Context) (API, error)

type Service struct {
	client    ClientFunc
	renderer  render.Renderer
	toolsetID string
}

func NewService(ctx command.ToolsetContext, toolsetID string, client ClientFunc) *Service {
	svc := &Service{client: client, renderer: ctx.Renderer, toolsetID: toolsetID}
	if svc.renderer == nil {
		svc.renderer = render.NewRenderer()
	}
	return svc
}

func ToolSpecs(ctx command.ToolsetContext, toolsetID string, client ClientFunc) []command.Spec {
	svc := NewService(ctx, toolsetID, client)
	return []command.Spec{
		{
			Name:        "instances",
			Usage:       "instances [state]",
			Description: "List EC2 instances, optionally only those in one state.",
			ToolsetID:   toolsetID,
			MaxArgs:     1,
			Safety:      command.SafetyReadOnly,
			Handler:     svc.handleInstances,
		},
	}
}

// ListInstances walks every DescribeInstances page. A non-empty state is sent
// as the instance-state-name filter.
func (s *Service) ListInstances(ctx context.Context, awsCtx awslib.Context, state string) ([]render.Instance, error) {
	state = strings.ToLower(strings.TrimSpace(state))
	if state != "" && !validState(state) {
		return nil, fmt.Errorf("invalid instance state %q: want one of %s", state, strings.Join(instanceStates, ", "))
	}
	if s.client == nil {
		return nil, errors.New("ec2 client not configured")
	}
	client, err := s.client(ctx, awsCtx)
	if err != nil {
		return nil, err
	}
	return paginate.All(ctx, "ec2 DescribeInstances", func(ctx context.Context, token *string) ([]render.Instance, *string, error) {
		input := &ec2.DescribeInstancesInput{NextToken: token}
		if state != "" {
			input.Filters = []ec2types.Filter{{Name: aws.String("instance-state-name"), Values: []string{state}}}
		}
		out, err := client.DescribeInstances(ctx, input)
		if err != nil {
			return nil, nil, err
		}
		var page []render.Instance
		for _, reservation := range out.Reservations {
			for _, inst := range reservation.Instances {
				page = append(page, summarizeInstance(inst))
			}
		}
		return page, out.NextToken, nil
	})
}

func (s *Service) handleInstances(ctx context.Context, req command.Request) (command.Result, error) {
	state := ""
	if len(req.Args) > 0 {
		state = req.Args[0]
	}
	instances, err := s.ListInstances(ctx, req.Grant.AWS, state)
	if err != nil {
		return command.Result{}, err
	}
	text := s.renderer.Instances(instances)
	if text == "" {
		text = "No matching instances."
	}
	return command.Result{Text: text, Data: map[string]any{"instances": instances, "count": len(instances)}}, nil
}

func summarizeInstance(inst ec2types.Instance) render.Instance {
	out := render.Instance{
		ID:   aws.ToString(inst.InstanceId),
		Name: tagValue(inst.Tags, "Name"),
		Type: string(inst.InstanceType),
	}
	if inst.State != nil {
		out.State = string(inst.State.Name)
	}
	return out
}

func tagValue(tags []ec2types.Tag, key string) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == key {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

func validState(state string) bool {
	for _, known := range instanceStates {
		if state == known {
			return true
		}
	}
	return false
}
