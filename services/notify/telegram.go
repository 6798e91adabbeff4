package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends HTML messages through the Bot API. Without a token or chat
// id it is disabled and Notify is a no-op.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	// MaxElapsed bounds the retry loop.
	MaxElapsed time.Duration
}

func NewTelegram(token, chatID string, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		token:      token,
		chatID:     chatID,
		baseURL:    telegramAPI,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		MaxElapsed: 30 * time.Second,
	}
}

// WithBaseURL points the client at another API host.
func (t *Telegram) WithBaseURL(u string) *Telegram {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

func (t *Telegram) Enabled() bool { return t.token != "" && t.chatID != "" }

func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	if !t.Enabled() || msg.Text == "" {
		return nil
	}
	return t.Send(ctx, msg.Text)
}

// Send posts text to the configured chat, retrying server errors and
// transport failures with exponential backoff. 4xx responses are final.
func (t *Telegram) Send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {text},
		"parse_mode": {"HTML"},
	}

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, body)
		default:
			return backoff.Permanent(fmt.Errorf("telegram status %d: %s", resp.StatusCode, body))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = t.MaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		t.logger.Error("Failed to send Telegram message", zap.Int("attempts", attempt), zap.Error(err))
		return fmt.Errorf("telegram send: %w", err)
	}
	t.logger.Debug("Telegram message sent", zap.Int("attempts", attempt))
	return nil
}
