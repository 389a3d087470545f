package aws

import (
	"context"
	"fmt"

	awslib "opsbot/internal/aws"
	"opsbot/internal/command"
	awscloudwatch "opsbot/toolsets/aws/cloudwatch"
	awsec2 "opsbot/toolsets/aws/ec2"
	awssqs "opsbot/toolsets/aws/sqs"
	awssts "opsbot/toolsets/aws/sts"
)

type Toolset struct {
	ctx     command.ToolsetContext
	clients *Clients
}

func New() *Toolset {
	return &Toolset{}
}

func init() {
	command.MustRegisterToolset("aws", func() command.Toolset {
		return New()
	})
}

func (t *Toolset) ID() string {
	return "aws"
}

func (t *Toolset) Version() string {
	return "0.1.0"
}

// Init reuses a client cache already shared through the service registry, or
// registers a new one there.
func (t *Toolset) Init(ctx command.ToolsetContext) error {
	t.ctx = ctx
	if clients, ok := command.Lookup[*Clients](ctx.Services, ClientsService); ok {
		t.clients = clients
		return nil
	}
	t.clients = NewClients()
	if ctx.Services != nil {
		if err := ctx.Services.Register(ClientsService, t.clients); err != nil {
			return err
		}
	}
	return nil
}

func (t *Toolset) Register(reg command.Registry) error {
	if t.clients == nil {
		t.clients = NewClients()
	}
	var specs []command.Spec
	specs = append(specs, awscloudwatch.ToolSpecs(t.ctx, t.ID(), t.cloudwatchAPI)...)
	specs = append(specs, awssqs.ToolSpecs(t.ctx, t.ID(), t.sqsAPI)...)
	specs = append(specs, awsec2.ToolSpecs(t.ctx, t.ID(), t.ec2API)...)
	specs = append(specs, awssts.ToolSpecs(t.ctx, t.ID(), t.stsAPI)...)
	for _, spec := range specs {
		if err := reg.Add(spec); err != nil {
			return fmt.Errorf("register %s: %w", spec.Name, err)
		}
	}
	return nil
}

// The adapters below return a nil interface on error, never a typed nil client.

func (t *Toolset) cloudwatchAPI(ctx context.Context, awsCtx awslib.Context) (awscloudwatch.API, error) {
	client, err := t.clients.CloudWatch(ctx, awsCtx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (t *Toolset) sqsAPI(ctx context.Context, awsCtx awslib.Context) (awssqs.API, error) {
	client, err := t.clients.SQS(ctx, awsCtx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (t *Toolset) ec2API(ctx context.Context, awsCtx awslib.Context) (awsec2.API, error) {
	client, err := t.clients.EC2(ctx, awsCtx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (t *Toolset) stsAPI(ctx context.Context, awsCtx awslib.Context) (awssts.API, error) {
	client, err := t.clients.STS(ctx, awsCtx)
	if err != nil {
		return nil, err
	}
	return client, nil
}
