package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/skalibog/bstb/internal/analysis/conditions"
	"github.com/skalibog/bstb/internal/analysis/confidence"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/internal/exchange"
	"github.com/skalibog/bstb/internal/indicators"
	"github.com/skalibog/bstb/internal/trading"
	"github.com/skalibog/bstb/pkg/logger"
	"github.com/skalibog/bstb/pkg/models"
	"go.uber.org/zap"
)

// Trade — завершенная сделка бэктеста
type Trade struct {
	EntryIndex int
	ExitIndex  int
	EntryPrice float64
	ExitPrice  float64
	Profit     float64
	Reason     string
}

// Result — итог прогона бэктеста
type Result struct {
	InitialBalance float64
	FinalBalance   float64
	Trades         []Trade
}

// Backtester прогоняет исторический ряд через тот же конвейер
// условий и ту же машину состояний выхода, что и живой трейдер.
// Стакан в истории отсутствует, поэтому ворота покупки не применяются.
type Backtester struct {
	cfg            *config.Config
	buySet         []conditions.Condition
	initialBalance float64
}

// New создает бэктестер
func New(cfg *config.Config, initialBalance float64) *Backtester {
	return &Backtester{
		cfg:            cfg,
		buySet:         conditions.BuySet(cfg.Strategy.ConditionWeights.Buy),
		initialBalance: initialBalance,
	}
}

// Run выполняет прогон по ряду свечей одного таймфрейма
func (b *Backtester) Run(candles []*models.Candle) (*Result, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("пустой ряд свечей")
	}

	series, err := indicators.Compute(candles, b.cfg.Strategy.Technical)
	if err != nil {
		return nil, err
	}

	rule := &exchange.SymbolRule{Symbol: candles[0].Symbol}
	result := &Result{
		InitialBalance: b.initialBalance,
		FinalBalance:   b.initialBalance,
	}

	var mon *trading.PositionMonitor
	var entryIndex int

	for i := 0; i < series.Len(); i++ {
		row := series.Row(i)
		price := row.Close

		if mon == nil {
			score := confidence.Score(conditions.EvaluateSet(b.buySet, row))
			if score < b.cfg.Strategy.BuyThreshold {
				continue
			}
			quantity := result.FinalBalance * (1 - b.cfg.Exit.CommissionRate) / price
			if quantity <= 0 {
				continue
			}
			pos := trading.NewPosition(rule, price, quantity, b.cfg.Exit)
			mon = trading.NewPositionMonitor(pos, b.cfg.Exit)
			entryIndex = i
			continue
		}

		mon.Tick(price)
		if mon.NeedsRescore() {
			mon.Rescore(confidence.Score(conditions.EvaluateSet(b.buySet, row)))
		}

		reason := mon.ExitSignal(price)
		if reason == trading.ExitNone {
			continue
		}

		result.FinalBalance = b.closeTrade(result, mon, entryIndex, i, price, reason.String())
		mon = nil
	}

	// Незакрытая позиция ликвидируется по последнему закрытию
	if mon != nil {
		last := series.Len() - 1
		result.FinalBalance = b.closeTrade(result, mon, entryIndex, last, series.Row(last).Close, "end_of_data")
	}

	return result, nil
}

func (b *Backtester) closeTrade(result *Result, mon *trading.PositionMonitor, entryIndex, exitIndex int, price float64, reason string) float64 {
	pos := mon.Position()
	proceeds := pos.Quantity * price * (1 - b.cfg.Exit.CommissionRate)
	profit := (price - pos.EntryPrice) * pos.Quantity

	result.Trades = append(result.Trades, Trade{
		EntryIndex: entryIndex,
		ExitIndex:  exitIndex,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Profit:     profit,
		Reason:     reason,
	})
	return proceeds
}

// Report пишет сводку прогона в лог
func (r *Result) Report() {
	var winning int
	var totalProfit float64
	for _, t := range r.Trades {
		if t.Profit > 0 {
			winning++
		}
		totalProfit += t.Profit
	}

	winRate := 0.0
	if len(r.Trades) > 0 {
		winRate = float64(winning) / float64(len(r.Trades)) * 100
	}

	logger.Info("=== Отчет бэктеста ===",
		zap.Float64("initial_balance", r.InitialBalance),
		zap.Float64("final_balance", r.FinalBalance),
		zap.Float64("total_profit", totalProfit),
		zap.Int("total_trades", len(r.Trades)),
		zap.Int("winning_trades", winning),
		zap.Int("losing_trades", len(r.Trades)-winning),
		zap.Float64("win_rate_pct", winRate))
}

// LoadCSV читает ряд свечей из CSV: timestamp,open,high,low,close,volume.
// Временная метка — unix-миллисекунды или RFC3339.
func LoadCSV(path, symbol, interval string) ([]*models.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла истории: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения CSV: %w", err)
	}

	var candles []*models.Candle
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("строка %d: ожидается 6 колонок, получено %d", i+1, len(row))
		}
		// Пропуск строки заголовка
		if i == 0 {
			if _, err := strconv.ParseFloat(row[1], 64); err != nil {
				continue
			}
		}

		ts, err := parseTimestamp(row[0])
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", i+1, err)
		}

		values := make([]float64, 5)
		for j := 1; j < 6; j++ {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, fmt.Errorf("строка %d, колонка %d: %w", i+1, j+1, err)
			}
			values[j-1] = v
		}

		candles = append(candles, &models.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: ts,
			Open:     values[0],
			High:     values[1],
			Low:      values[2],
			Close:    values[3],
			Volume:   values[4],
		})
	}

	return candles, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(ms/1000, 0), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("неизвестный формат временной метки: %q", raw)
}
