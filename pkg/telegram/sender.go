package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"web3-radar/pkg/httpclient"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// Sender Telegram Bot API 发送器
type Sender struct {
	apiBase    string
	botToken   string
	httpClient *httpclient.HTTPClient
	logger     *zap.Logger
	backoff    time.Duration
}

type sendMessageReq struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResp struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewSender(apiBase, botToken string, timeout time.Duration, logger *zap.Logger) *Sender {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Sender{
		apiBase:  strings.TrimRight(apiBase, "/"),
		botToken: botToken,
		httpClient: httpclient.NewHTTPClient(httpclient.HTTPClientConfig{
			Timeout:    timeout,
			RateLimit:  1200, // bot api 全局 30 msg/s，这里保守一些
			MaxRetries: 0,
		}, logger),
		logger:  logger,
		backoff: time.Second,
	}
}

// Enabled 未配置 token 时不发送
func (s *Sender) Enabled() bool {
	return s.botToken != ""
}

// Send 发送一条 HTML 消息
func (s *Sender) Send(ctx context.Context, chatID, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	var resp sendMessageResp
	err := s.httpClient.PostJSON(ctx, url, sendMessageReq{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}, nil, &resp)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram API error: %s", resp.Description)
	}
	return nil
}

// SendWithRetry 指数退避重试
func (s *Sender) SendWithRetry(ctx context.Context, chatID, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if lastErr = s.Send(ctx, chatID, text); lastErr == nil {
			return nil
		}
		wait := s.backoff * time.Duration(1<<uint(i))
		s.logger.Warn("Telegram send failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries+1),
			zap.Duration("backoff", wait),
			zap.Error(lastErr))
		if i == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}
