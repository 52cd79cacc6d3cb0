// Package notify delivers loop-lifecycle notifications (started, finished,
// failed) to Slack and Discord. Each parent issue's run is one thread: the
// start message opens it, terminal messages reply into it, and a reaction
// on the start message mirrors the outcome at a glance.
package notify

import (
	"context"
	"encoding/json"
	"os"

	"github.com/slack-go/slack"
	"github.com/spf13/viper"
)

// Event types gating which notifications fire, keyed under
// notifications.events.* in the config.
const (
	EventStart      = "on_start"
	EventSuccess    = "on_success"
	EventFailure    = "on_failure"
	EventTaskFailed = "on_task_failed"
)

// Manager fans one notification out to every configured provider.
type Manager struct {
	// Slack: bot API when a token is present, webhook otherwise.
	client       *slack.Client
	slackWebhook *SlackNotifier
	channelID    string

	// Discord
	discord *DiscordNotifier

	logger func(string, ...interface{})
}

// ThreadState carries the per-provider thread anchors across one run, so a
// loop's terminal message lands in the thread its start message opened.
type ThreadState struct {
	SlackTS   string `json:"slack_ts,omitempty"`
	DiscordID string `json:"discord_id,omitempty"`
}

// NewManager creates a Manager from the loaded configuration and
// environment. Providers with missing credentials are left out with a
// logged warning; that is never fatal.
func NewManager(logger func(string, ...interface{})) *Manager {
	m := &Manager{logger: logger}
	m.initSlack()
	m.initDiscord()
	return m
}

func (m *Manager) initSlack() {
	if !viper.GetBool("notifications.slack.enabled") {
		return
	}

	botToken := os.Getenv("SLACK_BOT_USER_TOKEN")
	if botToken == "" {
		if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
			m.slackWebhook = NewSlackNotifier(webhook)
			return
		}
		m.logf("Warning: SLACK_BOT_USER_TOKEN not set, slack notifications disabled")
		return
	}

	m.client = slack.New(botToken)
	m.channelID = viper.GetString("notifications.slack.channel")
}

func (m *Manager) initDiscord() {
	if !viper.GetBool("notifications.discord.enabled") {
		return
	}

	botToken := os.Getenv("DISCORD_BOT_TOKEN")
	channelID := os.Getenv("DISCORD_CHANNEL_ID")
	if channelID == "" {
		channelID = viper.GetString("notifications.discord.channel")
	}

	if botToken != "" && channelID != "" {
		m.discord = NewDiscordBotNotifier(botToken, channelID)
		return
	}
	if webhook := os.Getenv("DISCORD_WEBHOOK_URL"); webhook != "" {
		m.discord = NewDiscordNotifier(webhook)
		return
	}
	m.logf("Warning: DISCORD_BOT_TOKEN/DISCORD_CHANNEL_ID or DISCORD_WEBHOOK_URL not set, discord notifications disabled")
}

// Notify sends a message for an event if that event is enabled, threading
// it under the anchors in threadStateStr. Returns the updated thread state
// for the caller to carry into the next Notify.
func (m *Manager) Notify(ctx context.Context, eventType, message, threadStateStr string) (string, error) {
	if !m.isEnabled(eventType) {
		return threadStateStr, nil
	}
	m.logf("Sending notification for event: %s", eventType)

	ts := parseThreadState(threadStateStr)

	if m.isProviderEnabled("slack") {
		switch {
		case m.client != nil:
			newTS, err := m.notifySlack(ctx, message, ts.SlackTS)
			if err != nil {
				m.logf("Failed to send Slack notification: %v", err)
			} else if ts.SlackTS == "" {
				ts.SlackTS = newTS
			}
		case m.slackWebhook != nil:
			// Webhooks cannot thread or react; each message stands alone.
			if err := m.slackWebhook.Notify(ctx, message); err != nil {
				m.logf("Failed to send Slack webhook notification: %v", err)
			}
		}
	}

	if m.discord != nil && m.isProviderEnabled("discord") {
		newID, err := m.discord.Send(ctx, message, ts.DiscordID)
		if err != nil {
			m.logf("Failed to send Discord notification: %v", err)
		} else if ts.DiscordID == "" {
			ts.DiscordID = newID
		}
	}

	return dumpThreadState(ts), nil
}

func (m *Manager) notifySlack(ctx context.Context, message, threadTS string) (string, error) {
	channelID := m.channelID
	if channelID == "" {
		channelID = "#general"
	}

	opts := []slack.MsgOption{slack.MsgOptionText(message, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, newTS, err := m.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", err
	}
	return newTS, nil
}

func (m *Manager) isEnabled(eventType string) bool {
	if !m.isProviderEnabled("slack") && !m.isProviderEnabled("discord") {
		return false
	}
	return viper.GetBool("notifications.events." + eventType)
}

func (m *Manager) isProviderEnabled(provider string) bool {
	return viper.GetBool("notifications." + provider + ".enabled")
}

// AddReaction marks a run's start message with an outcome emoji.
func (m *Manager) AddReaction(ctx context.Context, threadStateStr, reaction string) error {
	ts := parseThreadState(threadStateStr)

	if m.client != nil && ts.SlackTS != "" {
		channelID := m.channelID
		if channelID == "" {
			channelID = "#general"
		}
		err := m.client.AddReactionContext(ctx, reaction, slack.ItemRef{
			Channel:   channelID,
			Timestamp: ts.SlackTS,
		})
		if err != nil {
			m.logf("Failed to add Slack reaction %s: %v", reaction, err)
		}
	}

	if m.discord != nil && ts.DiscordID != "" {
		if err := m.discord.AddReaction(ctx, ts.DiscordID, reaction); err != nil {
			m.logf("Failed to add Discord reaction %s: %v", reaction, err)
		}
	}

	return nil
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger(format, args...)
	}
}

func parseThreadState(s string) ThreadState {
	var ts ThreadState
	if s == "" {
		return ts
	}
	if err := json.Unmarshal([]byte(s), &ts); err == nil {
		return ts
	}
	// A bare string is a Slack thread timestamp.
	return ThreadState{SlackTS: s}
}

func dumpThreadState(ts ThreadState) string {
	if ts.DiscordID == "" && ts.SlackTS != "" {
		return ts.SlackTS
	}
	if ts.DiscordID == "" && ts.SlackTS == "" {
		return ""
	}
	data, _ := json.Marshal(ts)
	return string(data)
}
