package notify

import (
	"context"
	"testing"

	"github.com/skalibog/bstb/internal/config"
)

func TestNewTelegramNotifierRequiresCredentials(t *testing.T) {
	cases := []config.TelegramConfig{
		{},
		{Token: "токен"},
		{ChatID: "123"},
	}
	for _, cfg := range cases {
		if _, err := NewTelegramNotifier(cfg); err == nil {
			t.Errorf("конфигурация %+v должна отклоняться", cfg)
		}
	}

	if _, err := NewTelegramNotifier(config.TelegramConfig{Token: "токен", ChatID: "123"}); err != nil {
		t.Errorf("полная конфигурация отклонена: %v", err)
	}
}

func TestNopNotifier(t *testing.T) {
	if !(NopNotifier{}).Notify(context.Background(), "сообщение") {
		t.Error("заглушка всегда сообщает об успехе")
	}
}
