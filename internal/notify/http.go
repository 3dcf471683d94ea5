package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts messages through the Telegram Bot API.
type TelegramSender struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegramSender creates a sender for the bot token and chat id.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return newTelegramSender(telegramAPI, token, chatID)
}

func newTelegramSender(baseURL, token, chatID string) *TelegramSender {
	return &TelegramSender{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(sendTimeout),
		token:  token,
		chatID: chatID,
	}
}

func (t *TelegramSender) Send(ctx context.Context, text string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.token).
		SetBody(map[string]string{"chat_id": t.chatID, "text": text}).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return errors.Wrap(err, "telegram: send request")
	}
	if resp.IsError() {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), 512))
	}
	return nil
}

func (t *TelegramSender) Name() string {
	return "telegram"
}

// WebhookSender posts messages as JSON to a chat webhook. The text is sent in
// both the "text" (Slack) and "content" (Discord) fields.
type WebhookSender struct {
	client *resty.Client
	url    string
}

// NewWebhookSender creates a sender for the webhook url.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{client: resty.New().SetTimeout(sendTimeout), url: url}
}

func (w *WebhookSender) Send(ctx context.Context, text string) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text, "content": text}).
		Post(w.url)
	if err != nil {
		return errors.Wrap(err, "webhook: send request")
	}
	if resp.IsError() {
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), 512))
	}
	return nil
}

func (w *WebhookSender) Name() string {
	return "webhook"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
