package storage

import (
	"context"

	"github.com/skalibog/bstb/pkg/models"
)

// NoopStorage — заглушка для работы без базы данных
type NoopStorage struct{}

func NewNoopStorage() *NoopStorage {
	return &NoopStorage{}
}

func (s *NoopStorage) SaveSignal(ctx context.Context, signal *models.SignalResult) error {
	return nil
}

func (s *NoopStorage) SavePositionEvent(ctx context.Context, event *models.PositionEvent) error {
	return nil
}

func (s *NoopStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.SignalResult, error) {
	return nil, nil
}

func (s *NoopStorage) Close() {}
