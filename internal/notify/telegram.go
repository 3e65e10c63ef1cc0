package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/logger"
	"go.uber.org/zap"
)

// Notifier отправляет уведомления. Отправка никогда не фатальна:
// сбой логируется, вызывающая сторона продолжает работу.
type Notifier interface {
	Notify(ctx context.Context, text string) bool
}

// TelegramNotifier отправляет сообщения через Telegram Bot API
type TelegramNotifier struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramNotifier создает нотификатор Telegram
func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("не заданы token/chat_id для Telegram")
	}
	return &TelegramNotifier{
		token:  cfg.Token,
		chatID: cfg.ChatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Notify отправляет сообщение. Возвращает true при успехе.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) bool {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.token)

	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		logger.Error("Ошибка формирования запроса Telegram", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Error("Ошибка отправки сообщения Telegram", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	var body struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.Error("Ошибка разбора ответа Telegram", zap.Error(err))
		return false
	}
	if !body.OK {
		logger.Error("Telegram отклонил сообщение",
			zap.Int("status", resp.StatusCode),
			zap.String("description", body.Description))
		return false
	}

	return true
}

// NopNotifier — заглушка при выключенных уведомлениях
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, text string) bool {
	return true
}
