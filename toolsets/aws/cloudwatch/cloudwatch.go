package awscloudwatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"opsbot/internal/alarms"
	awslib "opsbot/internal/aws"
	"opsbot/internal/command"
	"opsbot/internal/paginate"
	"opsbot/internal/render"
)

const noAlarmsReply = "No matching alarms."

// API is the part of the CloudWatch client the alarm queries use.
type API interface {
	DescribeAlarms(ctx context.Context, params *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
}

// ClientFunc returns a client for the credentials and region in awsCtx.
type ClientFunc func(ctx context.Context, awsCtx awslib.Context) (API, error)

type Service struct {
	client    ClientFunc
	renderer  render.Renderer
	ignore    []string
	watchlist []string
	toolsetID string
}

func NewService(ctx command.ToolsetContext, toolsetID string, client ClientFunc) *Service {
	svc := &Service{client: client, renderer: ctx.Renderer, toolsetID: toolsetID}
	if svc.renderer == nil {
		svc.renderer = render.NewRenderer()
	}
	if ctx.Config != nil {
		svc.ignore = append([]string{}, ctx.Config.Alarms.Ignore...)
		svc.watchlist = append([]string{}, ctx.Config.Alarms.Watchlist...)
	}
	return svc
}

func ToolSpecs(ctx command.ToolsetContext, toolsetID string, client ClientFunc) []command.Spec {
	svc := NewService(ctx, toolsetID, client)
	return []command.Spec{
		{
			Name:        "health",
			Usage:       "health",
			Description: "Count alarms in each state.",
			ToolsetID:   toolsetID,
			Safety:      command.SafetyReadOnly,
			Handler:     svc.handleHealth,
		},
		{
			Name:        "alarms",
			Usage:       "alarms <OK|ALARM|INSUFFICIENT_DATA>",
			Description: "List alarms in a state.",
			ToolsetID:   toolsetID,
			MinArgs:     1,
			MaxArgs:     1,
			Safety:      command.SafetyReadOnly,
			Handler:     svc.handleAlarms,
		},
		{
			Name:        "count",
			Usage:       "count <OK|ALARM|INSUFFICIENT_DATA>",
			Description: "Count alarms in a state.",
			ToolsetID:   toolsetID,
			MinArgs:     1,
			MaxArgs:     1,
			Safety:      command.SafetyReadOnly,
			Handler:     svc.handleCount,
		},
		{
			Name:        "watch",
			Usage:       "watch [alarm-name...]",
			Description: "Show the alarms on a watchlist; the configured one when no names are given.",
			ToolsetID:   toolsetID,
			MaxArgs:     -1,
			Safety:      command.SafetyReadOnly,
			Handler:     svc.handleWatch,
		},
		{
			Name:        "prefix",
			Usage:       "prefix <alarm-name-prefix>",
			Description: "List alarms whose name starts with a prefix.",
			ToolsetID:   toolsetID,
			MinArgs:     1,
			MaxArgs:     1,
			Safety:      command.SafetyReadOnly,
			Handler:     svc.handlePrefix,
		},
	}
}

// GetAllAlarms returns every metric alarm except those named in ignore and in
// the configured ignore list.
func (s *Service) GetAllAlarms(ctx context.Context, awsCtx awslib.Context, ignore []string) ([]alarms.Alarm, error) {
	return s.describe(ctx, awsCtx, &cloudwatch.DescribeAlarmsInput{}, ignore)
}

func (s *Service) QueryByState(ctx context.Context, awsCtx awslib.Context, state alarms.State) ([]alarms.Alarm, error) {
	set, err := s.describe(ctx, awsCtx, &cloudwatch.DescribeAlarmsInput{StateValue: cwtypes.StateValue(state)}, nil)
	if err != nil {
		return nil, err
	}
	return alarms.ByState(set, state), nil
}

func (s *Service) QueryByStateReadably(ctx context.Context, awsCtx awslib.Context, state alarms.State) (string, error) {
	set, err := s.QueryByState(ctx, awsCtx, state)
	if err != nil {
		return "", err
	}
	return s.renderer.Alarms(set), nil
}

func (s *Service) CountAlarmsByState(ctx context.Context, awsCtx awslib.Context, state alarms.State) (int, error) {
	set, err := s.QueryByState(ctx, awsCtx, state)
	if err != nil {
		return 0, err
	}
	return alarms.CountByState(set, state), nil
}

// QueryByWatchlist fetches all alarms and keeps the named ones. Names are not
// pushed down because DescribeAlarms accepts at most 100 of them.
func (s *Service) QueryByWatchlist(ctx context.Context, awsCtx awslib.Context, names []string) ([]alarms.Alarm, error) {
	set, err := s.describe(ctx, awsCtx, &cloudwatch.DescribeAlarmsInput{}, nil)
	if err != nil {
		return nil, err
	}
	return alarms.ByWatchlist(set, names), nil
}

func (s *Service) QueryByWatchlistReadably(ctx context.Context, awsCtx awslib.Context, names []string) (string, error) {
	set, err := s.QueryByWatchlist(ctx, awsCtx, names)
	if err != nil {
		return "", err
	}
	return s.renderer.Alarms(set), nil
}

func (s *Service) QueryByPrefix(ctx context.Context, awsCtx awslib.Context, prefix string) ([]alarms.Alarm, error) {
	input := &cloudwatch.DescribeAlarmsInput{}
	if prefix != "" {
		input.AlarmNamePrefix = aws.String(prefix)
	}
	set, err := s.describe(ctx, awsCtx, input, nil)
	if err != nil {
		return nil, err
	}
	return alarms.ByPrefix(set, prefix), nil
}

func (s *Service) QueryByPrefixReadably(ctx context.Context, awsCtx awslib.Context, prefix string) (string, error) {
	set, err := s.QueryByPrefix(ctx, awsCtx, prefix)
	if err != nil {
		return "", err
	}
	return s.renderer.Alarms(set), nil
}

func (s *Service) HealthReportByState(ctx context.Context, awsCtx awslib.Context) (string, error) {
	set, err := s.GetAllAlarms(ctx, awsCtx, nil)
	if err != nil {
		return "", err
	}
	return s.renderer.HealthReport(alarms.TallyAllStates(set)), nil
}

// describe drains DescribeAlarms for input. Configured and extra ignore
// lists are removed from the result.
func (s *Service) describe(ctx context.Context, awsCtx awslib.Context, input *cloudwatch.DescribeAlarmsInput, ignore []string) ([]alarms.Alarm, error) {
	if s.client == nil {
		return nil, errors.New("cloudwatch client not configured")
	}
	client, err := s.client(ctx, awsCtx)
	if err != nil {
		return nil, err
	}
	set, err := paginate.All(ctx, "cloudwatch DescribeAlarms", func(ctx context.Context, token *string) ([]alarms.Alarm, *string, error) {
		page := *input
		page.NextToken = token
		out, err := client.DescribeAlarms(ctx, &page)
		if err != nil {
			return nil, nil, err
		}
		items := make([]alarms.Alarm, 0, len(out.MetricAlarms))
		for _, metric := range out.MetricAlarms {
			items = append(items, toAlarm(metric))
		}
		return items, out.NextToken, nil
	})
	if err != nil {
		return nil, err
	}
	set = alarms.WithIgnoreList(set, s.ignore)
	if len(ignore) > 0 {
		set = alarms.WithIgnoreList(set, ignore)
	}
	return set, nil
}

func toAlarm(metric cwtypes.MetricAlarm) alarms.Alarm {
	return alarms.Alarm{
		Name:        aws.ToString(metric.AlarmName),
		Description: aws.ToString(metric.AlarmDescription),
		MetricName:  aws.ToString(metric.MetricName),
		Namespace:   aws.ToString(metric.Namespace),
		State:       alarms.State(metric.StateValue),
	}
}

func (s *Service) handleHealth(ctx context.Context, req command.Request) (command.Result, error) {
	set, err := s.GetAllAlarms(ctx, req.Grant.AWS, nil)
	if err != nil {
		return command.Result{}, err
	}
	tally := alarms.TallyAllStates(set)
	data := map[string]any{"total": tally.Total()}
	for state, count := range tally {
		data[string(state)] = count
	}
	return command.Result{Text: s.renderer.HealthReport(tally), Data: data}, nil
}

func (s *Service) handleAlarms(ctx context.Context, req command.Request) (command.Result, error) {
	state, err := parseState(req.Args[0])
	if err != nil {
		return command.Result{}, err
	}
	set, err := s.QueryByState(ctx, req.Grant.AWS, state)
	if err != nil {
		return command.Result{}, err
	}
	return alarmsResult(s.renderer, set), nil
}

func (s *Service) handleCount(ctx context.Context, req command.Request) (command.Result, error) {
	state, err := parseState(req.Args[0])
	if err != nil {
		return command.Result{}, err
	}
	count, err := s.CountAlarmsByState(ctx, req.Grant.AWS, state)
	if err != nil {
		return command.Result{}, err
	}
	return command.Result{
		Text: strconv.Itoa(count),
		Data: map[string]any{"state": string(state), "count": count},
	}, nil
}

func (s *Service) handleWatch(ctx context.Context, req command.Request) (command.Result, error) {
	names := req.Args
	if len(names) == 0 {
		names = s.watchlist
	}
	if len(names) == 0 {
		return command.Result{}, errors.New("watchlist required: name alarms or set alarms.watchlist")
	}
	set, err := s.QueryByWatchlist(ctx, req.Grant.AWS, names)
	if err != nil {
		return command.Result{}, err
	}
	return alarmsResult(s.renderer, set), nil
}

func (s *Service) handlePrefix(ctx context.Context, req command.Request) (command.Result, error) {
	set, err := s.QueryByPrefix(ctx, req.Grant.AWS, req.Args[0])
	if err != nil {
		return command.Result{}, err
	}
	return alarmsResult(s.renderer, set), nil
}

func alarmsResult(renderer render.Renderer, set []alarms.Alarm) command.Result {
	text := renderer.Alarms(set)
	if text == "" {
		text = noAlarmsReply
	}
	return command.Result{Text: text, Data: map[string]any{"alarms": set, "count": len(set)}}
}

func parseState(value string) (alarms.State, error) {
	state, ok := alarms.ParseState(value)
	if !ok {
		known := make([]string, 0, len(alarms.KnownStates))
		for _, s := range alarms.KnownStates {
			known = append(known, string(s))
		}
		return "", fmt.Errorf("invalid alarm state %q: want one of %s", value, strings.Join(known, ", "))
	}
	return state, nil
}
