// Package render turns query results into the fixed chat templates. Renderers
// never filter; they print whatever they are given, in order.
package render

import (
	"fmt"
	"strings"

	"opsbot/internal/alarms"
)

type QueueDepth struct {
	Queue    string `json:"queue"`
	Visible  int    `json:"visible"`
	InFlight int    `json:"inFlight"`
}

type Instance struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	State string `json:"state"`
}

type Identity struct {
	Account string `json:"account"`
	ARN     string `json:"arn"`
	UserID  string `json:"userId,omitempty"`
}

type Renderer interface {
	Alarms(set []alarms.Alarm) string
	HealthReport(tally alarms.Tally) string
	QueueDepth(depth QueueDepth) string
	Queues(urls []string) string
	Instances(instances []Instance) string
	Identity(identity Identity) string
}

type TextRenderer struct{}

func NewRenderer() *TextRenderer {
	return &TextRenderer{}
}

// Alarms renders one "*<state>*: <name>" line per alarm.
func (r *TextRenderer) Alarms(set []alarms.Alarm) string {
	var b strings.Builder
	for _, alarm := range set {
		fmt.Fprintf(&b, "*%s*: %s\n", alarm.State, alarm.Name)
	}
	return b.String()
}

func (r *TextRenderer) HealthReport(tally alarms.Tally) string {
	return fmt.Sprintf("*Number Of Alarms, By State:* \n"+
		"There are *%d* OK alarms, \n"+
		"          *%d* alarming alarms, and \n"+
		"          *%d* alarms for which there is insufficient data.",
		tally[alarms.StateOK], tally[alarms.StateAlarm], tally[alarms.StateInsufficientData])
}

func (r *TextRenderer) QueueDepth(depth QueueDepth) string {
	return fmt.Sprintf("*%s*: %d messages visible, %d in flight\n", depth.Queue, depth.Visible, depth.InFlight)
}

func (r *TextRenderer) Queues(urls []string) string {
	var b strings.Builder
	for _, url := range urls {
		b.WriteString(url)
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *TextRenderer) Instances(instances []Instance) string {
	var b strings.Builder
	for _, inst := range instances {
		name := inst.Name
		if name == "" {
			name = inst.ID
		}
		fmt.Fprintf(&b, "*%s*: %s (%s, %s)\n", inst.State, name, inst.ID, inst.Type)
	}
	return b.String()
}

func (r *TextRenderer) Identity(identity Identity) string {
	return fmt.Sprintf("Account *%s* as %s", identity.Account, identity.ARN)
}
