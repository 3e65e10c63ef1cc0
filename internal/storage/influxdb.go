package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveSignal сохраняет результат цикла оценки
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal *models.SignalResult) error {
	fields := map[string]interface{}{
		"buy_score":     signal.BuyScore,
		"sell_score":    signal.SellScore,
		"bid_ratio":     signal.BidRatio,
		"bid_volume":    signal.BidVolume,
		"ask_volume":    signal.AskVolume,
		"spread":        signal.Spread,
		"current_price": signal.CurrentPrice,
	}
	for name, value := range signal.Components {
		fields["tf_"+name] = value
	}

	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol": signal.Symbol,
			"action": string(signal.Action),
		},
		fields,
		signal.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SavePositionEvent сохраняет событие жизненного цикла позиции
func (s *InfluxDBStorage) SavePositionEvent(ctx context.Context, event *models.PositionEvent) error {
	point := influxdb2.NewPoint(
		"position_events",
		map[string]string{
			"symbol": event.Symbol,
			"state":  event.State,
		},
		map[string]interface{}{
			"price":    event.Price,
			"quantity": event.Quantity,
			"profit":   event.Profit,
			"reason":   event.Reason,
		},
		event.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// GetSignalHistory получает историю сигналов символа
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.SignalResult, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -7d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории сигналов: %w", err)
	}

	var signals []*models.SignalResult
	for result.Next() {
		record := result.Record()

		action, _ := record.ValueByKey("action").(string)
		buyScore, _ := record.ValueByKey("buy_score").(float64)
		sellScore, _ := record.ValueByKey("sell_score").(float64)
		bidRatio, _ := record.ValueByKey("bid_ratio").(float64)
		currentPrice, _ := record.ValueByKey("current_price").(float64)

		signals = append(signals, &models.SignalResult{
			Symbol:       symbol,
			Timestamp:    record.Time(),
			Action:       models.Action(action),
			BuyScore:     buyScore,
			SellScore:    sellScore,
			BidRatio:     bidRatio,
			CurrentPrice: currentPrice,
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return signals, nil
}
