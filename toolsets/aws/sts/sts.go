package awssts

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	awslib "opsbot/internal/aws"
	"opsbot/internal/command"
	"opsbot/internal/paginate"
	"opsbot/internal/render"
)

type API interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type ClientFunc func(ctx context.Context, awsCtx awslib.Context) (API, error)

type Service struct {
	client    ClientFunc
	renderer  render.Renderer
	toolsetID string
}

func ToolSpecs(ctx command.ToolsetContext, toolsetID string, client ClientFunc) []command.Spec {
	svc := &Service{client: client, renderer: ctx.Renderer, toolsetID: toolsetID}
	if svc.renderer == nil {
		svc.renderer = render.NewRenderer()
	}
	return []command.Spec{
		{
			Name:        "whoami",
			Usage:       "whoami",
			Description: "Show the AWS account and identity the bot runs as.",
			ToolsetID:   toolsetID,
			Safety:      command.SafetyReadOnly,
			Handler:     svc.handleWhoami,
		},
	}
}

func (s *Service) CallerIdentity(ctx context.Context, awsCtx awslib.Context) (render.Identity, error) {
	if s.client == nil {
		return render.Identity{}, errors.New("sts client not configured")
	}
	client, err := s.client(ctx, awsCtx)
	if err != nil {
		return render.Identity{}, err
	}
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return render.Identity{}, paginate.Upstream("sts GetCallerIdentity", err)
	}
	return render.Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

func (s *Service) handleWhoami(ctx context.Context, req command.Request) (command.Result, error) {
	identity, err := s.CallerIdentity(ctx, req.Grant.AWS)
	if err != nil {
		return command.Result{}, err
	}
	return command.Result{
		Text: s.renderer.Identity(identity),
		Data: map[string]any{"account": identity.Account, "arn": identity.ARN, "userId": identity.UserID, "region": req.Grant.AWS.Region()},
	}, nil
}
