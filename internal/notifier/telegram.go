package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier delivers a formatted message.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
	logger   *zap.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, logger *zap.Logger) *TelegramNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  defaultAPIBase,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: logger,
	}
}

func (t *TelegramNotifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.APIBase, t.BotToken, method)
}

// maxMessageRunes is the Bot API limit for a single message.
const maxMessageRunes = 4096

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers text to the configured chat, split on line boundaries when
// it exceeds the per-message limit. Chunks are sent in order and the first
// failure stops delivery.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	chunks := splitMessage(text, maxMessageRunes)
	for i, chunk := range chunks {
		if err := t.sendChunk(ctx, chunk); err != nil {
			if len(chunks) > 1 {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			return err
		}
	}
	return nil
}

func (t *TelegramNotifier) sendChunk(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.ChatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	// The API answers 200 with ok=false for some rejected messages.
	var ar apiResponse
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &ar) == nil && !ar.OK && ar.Description != "" {
		return fmt.Errorf("telegram API rejected message: %s", ar.Description)
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit runes, preferring to
// break after a newline. A single line longer than limit is hard-cut.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var out []string
	for len(runes) > limit {
		cut := limit
		for j := limit - 1; j > 0; j-- {
			if runes[j] == '\n' {
				cut = j + 1
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// SendWithRetry retries Send with exponential backoff, starting at one
// second. It gives up early when ctx is done.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return fmt.Errorf("telegram retry aborted: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
		lastErr = t.Send(ctx, text)
		if lastErr == nil {
			return nil
		}
		t.logger.Warn("telegram send failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max", maxRetries+1),
			zap.Error(lastErr))
	}
	return fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)
}
