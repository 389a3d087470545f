package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

type Options struct {
	BotToken string
	AppToken string
	Debug    bool
	Logger   *slog.Logger
}

// Run connects over socket mode and relays messages until ctx is done.
func Run(ctx context.Context, opts Options, dispatcher DispatcherFunc) error {
	if opts.BotToken == "" || opts.AppToken == "" {
		return errors.New("slack bot and app tokens are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	api := slack.New(opts.BotToken, slack.OptionAppLevelToken(opts.AppToken), slack.OptionDebug(opts.Debug))
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	relay := NewRelay(api, dispatcher, logger)
	relay.SetIdentity(auth.UserID, auth.BotID)
	logger.Info("connected to slack", "team", auth.Team, "user", auth.User)

	client := socketmode.New(api, socketmode.OptionDebug(opts.Debug))
	go relay.consume(ctx, client)
	return client.RunContext(ctx)
}

func (r *Relay) consume(ctx context.Context, client *socketmode.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-client.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				r.logger.Debug("connecting to slack")
			case socketmode.EventTypeConnectionError:
				r.logger.Warn("slack connection error", "data", evt.Data)
			case socketmode.EventTypeConnected:
				r.logger.Info("slack socket connected")
			case socketmode.EventTypeEventsAPI:
				event, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					client.Ack(*evt.Request)
				}
				r.HandleEventsAPI(ctx, event)
			}
		}
	}
}
