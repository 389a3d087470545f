// Package slack relays chat messages between a Slack workspace and the
// command dispatcher.
package slack

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"opsbot/internal/cache"
	"opsbot/internal/command"
)

const (
	// SourceSlack tags audit events for commands that arrived over Slack.
	SourceSlack = "slack"

	// Slack sends a message event and an app_mention event for the same
	// mention; both carry the same channel and timestamp.
	seenTTL = 10 * time.Minute
)

type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// DispatcherFunc returns the dispatcher to use for the next message. The
// server swaps dispatchers on reload.
type DispatcherFunc func() *command.Dispatcher

// Inbound is the part of a Slack message event the relay needs.
type Inbound struct {
	Text      string
	User      string
	BotID     string
	SubType   string
	Channel   string
	TimeStamp string
}

type Relay struct {
	poster     Poster
	dispatcher DispatcherFunc
	logger     *slog.Logger
	botUserID  string
	botID      string
	seen       *cache.Store[struct{}]
}

func NewRelay(poster Poster, dispatcher DispatcherFunc, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		poster:     poster,
		dispatcher: dispatcher,
		logger:     logger,
		seen:       cache.NewStore[struct{}](),
	}
}

// SetIdentity records the bot's own user and bot ids so its messages are
// ignored and mentions of it are understood.
func (r *Relay) SetIdentity(userID, botID string) {
	r.botUserID = userID
	r.botID = botID
}

// HandleEventsAPI routes message and app_mention callbacks; other events are
// dropped.
func (r *Relay) HandleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		r.HandleMessage(ctx, Inbound{
			Text:      ev.Text,
			User:      ev.User,
			BotID:     ev.BotID,
			SubType:   ev.SubType,
			Channel:   ev.Channel,
			TimeStamp: ev.TimeStamp,
		})
	case *slackevents.AppMentionEvent:
		r.HandleMessage(ctx, Inbound{
			Text:      ev.Text,
			User:      ev.User,
			BotID:     ev.BotID,
			Channel:   ev.Channel,
			TimeStamp: ev.TimeStamp,
		})
	}
}

// HandleMessage dispatches one message and posts the reply, if any, to the
// channel it came from.
func (r *Relay) HandleMessage(ctx context.Context, in Inbound) {
	if r.ignored(in) {
		return
	}
	dispatcher := r.dispatcher()
	if dispatcher == nil {
		return
	}
	text := r.normalizeMention(in.Text, dispatcher.BotName())
	if _, _, ok := dispatcher.Parse(text); !ok {
		return
	}
	if in.TimeStamp != "" && !r.seen.Add(in.Channel+"|"+in.TimeStamp, struct{}{}, seenTTL) {
		return
	}
	msg := command.Message{Text: text, User: in.User, Channel: in.Channel}
	reply, handled, err := dispatcher.Handle(ctx, msg, SourceSlack)
	if !handled {
		return
	}
	if err != nil {
		r.logger.Error("command failed", "channel", in.Channel, "user", in.User, "err", dispatcher.Redact(err.Error()))
		reply = "Error: " + err.Error()
	}
	reply = dispatcher.Redact(reply)
	if strings.TrimSpace(reply) == "" {
		return
	}
	if _, _, err := r.poster.PostMessageContext(ctx, in.Channel, slack.MsgOptionText(reply, false)); err != nil {
		r.logger.Error("post reply failed", "channel", in.Channel, "err", err)
	}
}

func (r *Relay) ignored(in Inbound) bool {
	if in.SubType != "" || in.BotID != "" {
		return true
	}
	if in.User == "" || (r.botUserID != "" && in.User == r.botUserID) {
		return true
	}
	return in.Channel == ""
}

// normalizeMention turns "<@U123> health" into "<botName> health" when U123
// is the bot.
func (r *Relay) normalizeMention(text, botName string) string {
	if r.botUserID == "" {
		return text
	}
	trimmed := strings.TrimSpace(text)
	mention := "<@" + r.botUserID
	if !strings.HasPrefix(trimmed, mention) {
		return text
	}
	end := strings.Index(trimmed, ">")
	if end < 0 {
		return text
	}
	tag := trimmed[len(mention):end]
	if tag != "" && !strings.HasPrefix(tag, "|") {
		return text
	}
	return botName + " " + strings.TrimSpace(trimmed[end+1:])
}
