package aggregator

import (
	"context"
	"math"
	"time"

	"github.com/skalibog/bstb/internal/analysis/conditions"
	"github.com/skalibog/bstb/internal/analysis/confidence"
	"github.com/skalibog/bstb/internal/analysis/orderbook"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/internal/indicators"
	"github.com/skalibog/bstb/internal/storage"
	"github.com/skalibog/bstb/pkg/logger"
	"github.com/skalibog/bstb/pkg/models"
	"go.uber.org/zap"
)

// MarketData — источник рыночных данных для анализа
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetOrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error)
}

// Analyzer сводит уверенность таймфреймов и давление стакана в действие
type Analyzer struct {
	cfg     config.StrategyConfig
	market  MarketData
	store   storage.Storage
	buySet  []conditions.Condition
	sellSet []conditions.Condition
}

// TimeframeScore — пара уверенностей одного таймфрейма
type TimeframeScore struct {
	Timeframe string
	Buy       float64
	Sell      float64
}

// NewAnalyzer создает новый агрегатор сигналов
func NewAnalyzer(cfg config.StrategyConfig, market MarketData, store storage.Storage) *Analyzer {
	return &Analyzer{
		cfg:     cfg,
		market:  market,
		store:   store,
		buySet:  conditions.BuySet(cfg.ConditionWeights.Buy),
		sellSet: conditions.SellSet(cfg.ConditionWeights.Sell),
	}
}

// Evaluate выполняет один цикл оценки символа
func (a *Analyzer) Evaluate(ctx context.Context, symbol string) (*models.SignalResult, error) {
	scores, lastClose := a.scoreTimeframes(ctx, symbol)

	// Давление стакана. Ошибка стакана не срывает цикл:
	// ворота покупки просто остаются закрытыми.
	var pressure orderbook.Pressure
	if ob, err := a.market.GetOrderBook(ctx, symbol, a.cfg.OrderBook.Depth); err != nil {
		logger.Warn("Стакан недоступен, покупка заблокирована",
			zap.String("symbol", symbol), zap.Error(err))
	} else if p, err := orderbook.Analyze(ob); err != nil {
		logger.Warn("Ошибка анализа стакана",
			zap.String("symbol", symbol), zap.Error(err))
	} else {
		pressure = p
	}

	obSignal := pressure.Signal(a.cfg.OrderBook.PressureThreshold)
	aggBuy, aggSell := Aggregate(scores, a.cfg.TimeframeWeights)
	action := Decide(aggBuy, aggSell, obSignal, a.cfg.BuyThreshold, a.cfg.SellThreshold)

	currentPrice := lastClose
	if currentPrice == 0 && pressure.BestBid > 0 && pressure.BestAsk > 0 {
		currentPrice = (pressure.BestBid + pressure.BestAsk) / 2
	}

	components := make(map[string]float64, len(scores)*2)
	for _, s := range scores {
		components[s.Timeframe+"_buy"] = s.Buy
		components[s.Timeframe+"_sell"] = s.Sell
	}

	result := &models.SignalResult{
		Symbol:          symbol,
		Timestamp:       time.Now(),
		Action:          action,
		BuyScore:        aggBuy,
		SellScore:       aggSell,
		OrderBookSignal: obSignal,
		BidRatio:        pressure.BidRatio,
		BidVolume:       pressure.BidVolume,
		AskVolume:       pressure.AskVolume,
		Spread:          pressure.Spread,
		BestAsk:         pressure.BestAsk,
		BestBid:         pressure.BestBid,
		CurrentPrice:    currentPrice,
		Components:      components,
	}

	if a.store != nil {
		if err := a.store.SaveSignal(ctx, result); err != nil {
			logger.Warn("Не удалось сохранить сигнал", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	return result, nil
}

// IndicatorScore возвращает сводную уверенность покупки в [0,1]
// по свежим данным. Используется для эскалации цели прибыли.
func (a *Analyzer) IndicatorScore(ctx context.Context, symbol string) (float64, error) {
	scores, _ := a.scoreTimeframes(ctx, symbol)
	buy, _ := Aggregate(scores, a.cfg.TimeframeWeights)
	return buy, nil
}

// scoreTimeframes считает уверенность покупки и продажи по каждому
// таймфрейму. Недоступный таймфрейм или таймфрейм без единого
// вычислимого предиката выпадает из агрегации.
func (a *Analyzer) scoreTimeframes(ctx context.Context, symbol string) ([]TimeframeScore, float64) {
	var scores []TimeframeScore
	var lastClose float64

	for _, tf := range a.cfg.Timeframes {
		candles, err := a.market.GetKlines(ctx, symbol, tf, a.cfg.CandleLimit)
		if err != nil {
			logger.Warn("Таймфрейм недоступен, пропуск",
				zap.String("symbol", symbol), zap.String("timeframe", tf), zap.Error(err))
			continue
		}
		if len(candles) == 0 {
			logger.Debug("Нет свечей для таймфрейма",
				zap.String("symbol", symbol), zap.String("timeframe", tf))
			continue
		}

		series, err := indicators.Compute(candles, a.cfg.Technical)
		if err != nil {
			logger.Warn("Ошибка расчета индикаторов",
				zap.String("symbol", symbol), zap.String("timeframe", tf), zap.Error(err))
			continue
		}

		row := series.Latest()
		buyResults := conditions.EvaluateSet(a.buySet, row)
		sellResults := conditions.EvaluateSet(a.sellSet, row)

		if confidence.EvaluableWeight(buyResults) == 0 && confidence.EvaluableWeight(sellResults) == 0 {
			logger.Debug("Нет вычислимых предикатов, таймфрейм пропущен",
				zap.String("symbol", symbol), zap.String("timeframe", tf))
			continue
		}

		scores = append(scores, TimeframeScore{
			Timeframe: tf,
			Buy:       confidence.Score(buyResults),
			Sell:      confidence.Score(sellResults),
		})

		if lastClose == 0 && !math.IsNaN(row.Close) {
			lastClose = row.Close
		}
	}

	return scores, lastClose
}

// NormalizeWeights нормализует веса таймфреймов по участвующим в цикле.
// Таймфрейм без записи в карте весов получает вес 1.
func NormalizeWeights(weights map[string]float64, present []string) map[string]float64 {
	raw := make(map[string]float64, len(present))
	var sum float64
	for _, tf := range present {
		w, ok := weights[tf]
		if !ok {
			w = 1.0
		}
		if w < 0 {
			w = 0
		}
		raw[tf] = w
		sum += w
	}

	normalized := make(map[string]float64, len(raw))
	if sum == 0 {
		return normalized
	}
	for tf, w := range raw {
		normalized[tf] = w / sum
	}
	return normalized
}

// Aggregate сводит пары уверенностей во взвешенные агрегаты.
// Веса нормализуются только по таймфреймам, давшим данные.
func Aggregate(scores []TimeframeScore, weights map[string]float64) (float64, float64) {
	present := make([]string, len(scores))
	for i, s := range scores {
		present[i] = s.Timeframe
	}
	normalized := NormalizeWeights(weights, present)

	var buy, sell float64
	for _, s := range scores {
		w := normalized[s.Timeframe]
		buy += w * s.Buy
		sell += w * s.Sell
	}
	return buy, sell
}

// Decide выбирает действие. Порядок фиксирован: покупка проверяется
// первой и дополнительно требует подтверждения стаканом; продажа
// требует только индикаторов; иначе — ожидание.
func Decide(aggBuy, aggSell float64, orderBookSignal bool, buyThreshold, sellThreshold float64) models.Action {
	if aggBuy >= buyThreshold && orderBookSignal {
		return models.ActionBuy
	}
	if aggSell >= sellThreshold {
		return models.ActionSell
	}
	return models.ActionWait
}
