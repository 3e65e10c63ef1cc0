package storage

import (
	"context"
	"fmt"

	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

// Storage — приемник истории сигналов и событий позиций
type Storage interface {
	SaveSignal(ctx context.Context, signal *models.SignalResult) error
	SavePositionEvent(ctx context.Context, event *models.PositionEvent) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.SignalResult, error)
	Close()
}

// New создает хранилище по типу из конфигурации
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "influxdb":
		return NewInfluxDBStorage(cfg)
	case "none", "":
		return NewNoopStorage(), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %s", cfg.Type)
	}
}
