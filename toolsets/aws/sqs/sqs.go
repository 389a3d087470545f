package awssqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	awslib "opsbot/internal/aws"
	"opsbot/internal/command"
	"opsbot/internal/paginate"
	"opsbot/internal/render"
)

// listPageSize is sent as MaxResults; SQS only paginates ListQueues when it is set.
const listPageSize = 1000

type API interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
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
			Name:        "queue",
			Usage:       "queue <queue-name-or-url>",
			Description: "Show how many messages a queue holds.",
			ToolsetID:   toolsetID,
			MinArgs:     1,
			MaxArgs:     1,
			Safety:      command.SafetyReadOnly,
			Handler:     svc.handleQueue,
		},
		{
			Name:        "queues",
			Usage:       "queues [name-prefix]",
			Description: "List queue URLs.",
			ToolsetID:   toolsetID,
			MaxArgs:     1,
			Safety:      command.SafetyReadOnly,
			Handler:     svc.handleQueues,
		},
	}
}

// QueueDepth reads the visible and in-flight message counts of a queue given
// by name or URL.
func (s *Service) QueueDepth(ctx context.Context, awsCtx awslib.Context, queue string) (render.QueueDepth, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return render.QueueDepth{}, errors.New("queue name is required")
	}
	client, err := s.api(ctx, awsCtx)
	if err != nil {
		return render.QueueDepth{}, err
	}
	queueURL, err := resolveQueueURL(ctx, client, queue)
	if err != nil {
		return render.QueueDepth{}, err
	}
	out, err := client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
		AttributeNames: []sqstypes.QueueAttributeName{
			sqstypes.QueueAttributeNameApproximateNumberOfMessages,
			sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})
	if err != nil {
		return render.QueueDepth{}, paginate.Upstream("sqs GetQueueAttributes", err)
	}
	visible, err := attributeInt(out.Attributes, sqstypes.QueueAttributeNameApproximateNumberOfMessages)
	if err != nil {
		return render.QueueDepth{}, err
	}
	inFlight, err := attributeInt(out.Attributes, sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible)
	if err != nil {
		return render.QueueDepth{}, err
	}
	return render.QueueDepth{Queue: queueName(queueURL), Visible: visible, InFlight: inFlight}, nil
}

// QueueSize is the number of messages available for retrieval.
func (s *Service) QueueSize(ctx context.Context, awsCtx awslib.Context, queue string) (int, error) {
	depth, err := s.QueueDepth(ctx, awsCtx, queue)
	return depth.Visible, err
}

// QueueSizeNotVisible is the number of messages received but not yet deleted.
func (s *Service) QueueSizeNotVisible(ctx context.Context, awsCtx awslib.Context, queue string) (int, error) {
	depth, err := s.QueueDepth(ctx, awsCtx, queue)
	return depth.InFlight, err
}

func (s *Service) ListQueues(ctx context.Context, awsCtx awslib.Context, prefix string) ([]string, error) {
	client, err := s.api(ctx, awsCtx)
	if err != nil {
		return nil, err
	}
	return paginate.All(ctx, "sqs ListQueues", func(ctx context.Context, token *string) ([]string, *string, error) {
		input := &sqs.ListQueuesInput{MaxResults: aws.Int32(listPageSize), NextToken: token}
		if prefix != "" {
			input.QueueNamePrefix = aws.String(prefix)
		}
		out, err := client.ListQueues(ctx, input)
		if err != nil {
			return nil, nil, err
		}
		return out.QueueUrls, out.NextToken, nil
	})
}

func (s *Service) api(ctx context.Context, awsCtx awslib.Context) (API, error) {
	if s.client == nil {
		return nil, errors.New("sqs client not configured")
	}
	return s.client(ctx, awsCtx)
}

func (s *Service) handleQueue(ctx context.Context, req command.Request) (command.Result, error) {
	depth, err := s.QueueDepth(ctx, req.Grant.AWS, req.Args[0])
	if err != nil {
		return command.Result{}, err
	}
	return command.Result{
		Text: s.renderer.QueueDepth(depth),
		Data: map[string]any{"queue": depth.Queue, "visible": depth.Visible, "inFlight": depth.InFlight},
	}, nil
}

func (s *Service) handleQueues(ctx context.Context, req command.Request) (command.Result, error) {
	prefix := ""
	if len(req.Args) > 0 {
		prefix = req.Args[0]
	}
	urls, err := s.ListQueues(ctx, req.Grant.AWS, prefix)
	if err != nil {
		return command.Result{}, err
	}
	text := s.renderer.Queues(urls)
	if text == "" {
		text = "No queues found."
	}
	return command.Result{Text: text, Data: map[string]any{"queues": urls, "count": len(urls)}}, nil
}

func resolveQueueURL(ctx context.Context, client API, queue string) (string, error) {
	if strings.HasPrefix(queue, "https://") || strings.HasPrefix(queue, "http://") {
		return queue, nil
	}
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queue)})
	if err != nil {
		return "", paginate.Upstream("sqs GetQueueUrl", err)
	}
	if aws.ToString(out.QueueUrl) == "" {
		return "", fmt.Errorf("queue %s has no url", queue)
	}
	return aws.ToString(out.QueueUrl), nil
}

func attributeInt(attrs map[string]string, name sqstypes.QueueAttributeName) (int, error) {
	raw, ok := attrs[string(name)]
	if !ok {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s attribute %q: %w", name, raw, err)
	}
	return value, nil
}

func queueName(queueURL string) string {
	trimmed := strings.TrimRight(queueURL, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
