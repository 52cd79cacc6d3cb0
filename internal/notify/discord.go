package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DiscordNotifier sends notifications to Discord via Webhook or Bot API.
// The bot path supports threading (message references) and reactions; the
// webhook path is fire-and-forget.
type DiscordNotifier struct {
	WebhookURL string
	BotToken   string
	ChannelID  string
	Client     *http.Client
}

// NewDiscordNotifier creates a webhook-based notifier.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// NewDiscordBotNotifier creates a bot-token-based notifier.
func NewDiscordBotNotifier(token, channelID string) *DiscordNotifier {
	return &DiscordNotifier{
		BotToken:  token,
		ChannelID: channelID,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends a message without threading.
func (n *DiscordNotifier) Notify(ctx context.Context, message string) error {
	_, err := n.Send(ctx, message, "")
	return err
}

// Send sends a message and returns the message id (bot API only). replyToID
// threads the message under a previous one.
func (n *DiscordNotifier) Send(ctx context.Context, message, replyToID string) (string, error) {
	if n.BotToken != "" && n.ChannelID != "" {
		return n.sendBotMessage(ctx, message, replyToID)
	}
	if n.WebhookURL != "" {
		return "", n.sendWebhookMessage(ctx, message)
	}
	return "", fmt.Errorf("discord not configured (missing token/channel or webhook)")
}

func (n *DiscordNotifier) sendWebhookMessage(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send discord notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord notification failed with status: %d", resp.StatusCode)
	}
	return nil
}

func (n *DiscordNotifier) sendBotMessage(ctx context.Context, message, replyToID string) (string, error) {
	url := fmt.Sprintf("https://discord.com/api/v10/channels/%s/messages", n.ChannelID)

	payload := map[string]interface{}{"content": message}
	if replyToID != "" {
		payload["message_reference"] = map[string]string{"message_id": replyToID}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+n.BotToken)

	resp, err := n.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", responseError(resp)
	}

	var respData struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("failed to decode discord response: %w", err)
	}
	return respData.ID, nil
}

// AddReaction adds an emoji reaction to a message. Requires the bot API.
func (n *DiscordNotifier) AddReaction(ctx context.Context, messageID, reaction string) error {
	if n.BotToken == "" || n.ChannelID == "" {
		return fmt.Errorf("bot token and channel id required for reactions")
	}

	// Slack-style emoji names arrive from the shared manager; map the
	// common ones to URL-encoded unicode.
	reaction = mapEmoji(reaction)

	url := fmt.Sprintf("https://discord.com/api/v10/channels/%s/messages/%s/reactions/%s/@me", n.ChannelID, messageID, reaction)

	req, err := http.NewRequestWithContext(ctx, "PUT", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create reaction request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+n.BotToken)

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return nil
}

func mapEmoji(slackEmoji string) string {
	switch slackEmoji {
	case "white_check_mark", ":white_check_mark:":
		return "%E2%9C%85" // ✅
	case "x", ":x:":
		return "%E2%9D%8C" // ❌
	case "warning", ":warning:":
		return "%E2%9A%A0%EF%B8%8F" // ⚠️
	default:
		return slackEmoji
	}
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("discord api error: %d - %s", resp.StatusCode, body)
}
