package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/jpillora/backoff"
	"github.com/skalibog/bstb/pkg/logger"
	"go.uber.org/zap"
)

const (
	// Ограниченное число попыток, чтобы сбой биржи не превращался
	// в бесконечный шторм повторов
	maxAttempts = 3

	// Фиксированная пауза после ответа о превышении лимита запросов
	rateLimitCooldown = 60 * time.Second
)

// withRetry выполняет вызов биржи с ограниченным числом повторов.
// Ошибка лимита запросов обрабатывается фиксированной паузой
// и повтором того же вызова.
func withRetry(ctx context.Context, name string, fn func() error) error {
	b := &backoff.Backoff{
		Min:    2 * time.Second,
		Max:    rateLimitCooldown,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		delay := b.Duration()
		if isRateLimit(err) {
			delay = rateLimitCooldown
			logger.Warn("Превышен лимит запросов к бирже, пауза",
				zap.String("call", name),
				zap.Duration("cooldown", delay))
		} else {
			logger.Warn("Ошибка вызова биржи, повтор",
				zap.String("call", name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s: превышено число попыток (%d): %w", name, maxAttempts, err)
}

// isRateLimit распознает ответ биржи о превышении лимита запросов
func isRateLimit(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == -1003 || apiErr.Code == -1015
	}
	return false
}
