package aws

import (
	"context"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	awslib "opsbot/internal/aws"
)

// ClientsService is the service name the shared client cache is registered under.
const ClientsService = "aws.clients"

// clientCache keeps one SDK client per credential context.
type clientCache[C any] struct {
	mu      sync.Mutex
	clients map[string]C
	build   func(sdkaws.Config) C
}

func newClientCache[C any](build func(sdkaws.Config) C) *clientCache[C] {
	return &clientCache[C]{clients: map[string]C{}, build: build}
}

func (c *clientCache[C]) get(ctx context.Context, awsCtx awslib.Context) (C, error) {
	key := awsCtx.CacheKey()
	c.mu.Lock()
	if client, ok := c.clients[key]; ok {
		c.mu.Unlock()
		return client, nil
	}
	c.mu.Unlock()

	cfg, err := awslib.LoadConfig(ctx, awsCtx)
	if err != nil {
		var zero C
		return zero, err
	}
	client := c.build(cfg)
	c.mu.Lock()
	if existing, ok := c.clients[key]; ok {
		client = existing
	} else {
		c.clients[key] = client
	}
	c.mu.Unlock()
	return client, nil
}

func (c *clientCache[C]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Clients hands out SDK clients for a credential context, building each one
// on first use.
type Clients struct {
	cloudwatch *clientCache[*cloudwatch.Client]
	sqs        *clientCache[*sqs.Client]
	ec2        *clientCache[*ec2.Client]
	sts        *clientCache[*sts.Client]
}

func NewClients() *Clients {
	return &Clients{
		cloudwatch: newClientCache(func(cfg sdkaws.Config) *cloudwatch.Client { return cloudwatch.NewFromConfig(cfg) }),
		sqs:        newClientCache(func(cfg sdkaws.Config) *sqs.Client { return sqs.NewFromConfig(cfg) }),
		ec2:        newClientCache(func(cfg sdkaws.Config) *ec2.Client { return ec2.NewFromConfig(cfg) }),
		sts:        newClientCache(func(cfg sdkaws.Config) *sts.Client { return sts.NewFromConfig(cfg) }),
	}
}

func (c *Clients) CloudWatch(ctx context.Context, awsCtx awslib.Context) (*cloudwatch.Client, error) {
	return c.cloudwatch.get(ctx, awsCtx)
}

func (c *Clients) SQS(ctx context.Context, awsCtx awslib.Context) (*sqs.Client, error) {
	return c.sqs.get(ctx, awsCtx)
}

func (c *Clients) EC2(ctx context.Context, awsCtx awslib.Context) (*ec2.Client, error) {
	return c.ec2.get(ctx, awsCtx)
}

func (c *Clients) STS(ctx context.Context, awsCtx awslib.Context) (*sts.Client, error) {
	return c.sts.get(ctx, awsCtx)
}
