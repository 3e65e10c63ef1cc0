package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/internal/exchange"
	"github.com/skalibog/bstb/internal/notify"
	"github.com/skalibog/bstb/internal/storage"
	"github.com/skalibog/bstb/pkg/logger"
	"github.com/skalibog/bstb/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Пауза между повторами неподтвержденного ордера выхода
const exitRetryDelay = 60 * time.Second

// Число неудачных прямых продаж до попытки конвертации
// базового актива в котируемую валюту
const directExitAttempts = 3

// Exchange — операции биржи, нужные трейдеру
type Exchange interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
	PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) (*exchange.OrderFill, error)
	SymbolRule(ctx context.Context, symbol string) (*exchange.SymbolRule, error)
}

// Scorer — генератор сигналов и пересчета уверенности
type Scorer interface {
	Evaluate(ctx context.Context, symbol string) (*models.SignalResult, error)
	IndicatorScore(ctx context.Context, symbol string) (float64, error)
}

// StatusSink принимает обновления для отображения (UI).
// Может отсутствовать при безголовом запуске.
type StatusSink interface {
	UpdateSignal(signal *models.SignalResult)
	UpdatePosition(symbol string, pos *models.Position)
}

// Trader ведет жизненный цикл позиций по отслеживаемым символам
type Trader struct {
	cfg      *config.Config
	exch     Exchange
	analyzer Scorer
	store    storage.Storage
	notifier notify.Notifier
	balances *BalanceManager
	sink     StatusSink
}

// New создает трейдера
func New(cfg *config.Config, exch Exchange, analyzer Scorer, store storage.Storage, notifier notify.Notifier, sink StatusSink) *Trader {
	return &Trader{
		cfg:      cfg,
		exch:     exch,
		analyzer: analyzer,
		store:    store,
		notifier: notifier,
		balances: NewBalanceManager(exch, time.Duration(cfg.Balance.TTLSeconds)*time.Second),
		sink:     sink,
	}
}

// Run запускает по горутине на символ и блокируется до отмены контекста.
// Сбой одного символа не останавливает остальные.
func (t *Trader) Run(ctx context.Context, symbols []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			t.runSymbol(ctx, symbol)
			return nil
		})
	}
	return g.Wait()
}

// runSymbol — цикл одного символа: оценка на каждом опросе,
// вход по сигналу покупки, затем мониторинг позиции до выхода
func (t *Trader) runSymbol(ctx context.Context, symbol string) {
	logger.Info("Запущен цикл символа", zap.String("symbol", symbol))

	ticker := time.NewTicker(time.Duration(t.cfg.Trading.PollIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			signal, err := t.analyzer.Evaluate(ctx, symbol)
			if err != nil {
				logger.Warn("Ошибка цикла оценки, пропуск",
					zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			t.publishSignal(signal)

			switch signal.Action {
			case models.ActionBuy:
				pos := t.enterPosition(ctx, symbol, signal)
				if pos != nil {
					t.monitorPosition(ctx, pos)
				}
			case models.ActionSell:
				t.liquidateBase(ctx, symbol)
			}
		}
	}
}

// enterPosition выполняет переход Idle -> Entered.
// Расчет размера и размещение ордера сериализуются по котируемой
// валюте, чтобы параллельные символы не тратили один баланс дважды.
func (t *Trader) enterPosition(ctx context.Context, symbol string, signal *models.SignalResult) *models.Position {
	rule, err := t.exch.SymbolRule(ctx, symbol)
	if err != nil {
		logger.Warn("Не удалось получить ограничения пары, вход отменен",
			zap.String("symbol", symbol), zap.Error(err))
		return nil
	}

	unlock := t.balances.Lock(rule.QuoteAsset)
	defer unlock()

	balance, err := t.balances.Get(ctx, rule.QuoteAsset)
	if err != nil {
		logger.Warn("Не удалось получить баланс, вход отменен",
			zap.String("symbol", symbol), zap.Error(err))
		return nil
	}

	if balance <= t.cfg.Exit.MinInvestment {
		t.skipBuy(ctx, symbol, fmt.Sprintf("баланс %s %.4f ниже минимальной инвестиции %.4f",
			rule.QuoteAsset, balance, t.cfg.Exit.MinInvestment))
		return nil
	}

	bestAsk := signal.BestAsk
	if bestAsk <= 0 {
		price, err := t.exch.GetPrice(ctx, symbol)
		if err != nil || price <= 0 {
			t.skipBuy(ctx, symbol, "нет цены лучшего аска для расчета количества")
			return nil
		}
		bestAsk = price
	}

	amount := balance * (1 - t.cfg.Exit.CommissionRate) / bestAsk
	if amount <= 0 {
		t.skipBuy(ctx, symbol, "расчетное количество нулевое или отрицательное")
		return nil
	}
	if notional := amount * bestAsk; notional < rule.MinNotional {
		t.skipBuy(ctx, symbol, fmt.Sprintf("объем ордера %.4f ниже минимального %.4f",
			notional, rule.MinNotional))
		return nil
	}

	fill, err := t.exch.PlaceMarketOrder(ctx, symbol, "BUY", amount)
	if err != nil {
		logger.Error("Ордер входа отклонен", zap.String("symbol", symbol), zap.Error(err))
		t.notifier.Notify(ctx, fmt.Sprintf("Ордер покупки %s отклонен: %v", symbol, err))
		t.savePositionEvent(ctx, &models.PositionEvent{
			Symbol:    symbol,
			State:     models.PositionSkippedBuy,
			Reason:    err.Error(),
			Timestamp: time.Now(),
		})
		return nil
	}
	t.balances.Invalidate(rule.QuoteAsset)

	// Цена входа — средняя цена исполнения; при ее отсутствии
	// приближение лучшим аском на момент расчета
	entryPrice := fill.AvgPrice
	if entryPrice <= 0 {
		entryPrice = bestAsk
	}
	quantity := fill.Quantity
	if quantity <= 0 {
		quantity = amount
	}

	pos := NewPosition(rule, entryPrice, quantity, t.cfg.Exit)

	logger.Info("Открыта позиция",
		zap.String("symbol", symbol),
		zap.Float64("entry_price", entryPrice),
		zap.Float64("quantity", quantity),
		zap.Float64("base_stop_loss", pos.BaseStopLoss),
		zap.Float64("take_profit_pct", pos.TakeProfitPct))
	t.notifier.Notify(ctx, fmt.Sprintf("Открыта позиция %s: %.6f по %.6f", symbol, quantity, entryPrice))
	t.savePositionEvent(ctx, &models.PositionEvent{
		Symbol:    symbol,
		State:     models.PositionOpened,
		Price:     entryPrice,
		Quantity:  quantity,
		Timestamp: time.Now(),
	})
	t.publishPosition(symbol, pos)

	return pos
}

// skipBuy фиксирует пропущенный вход без смены состояния
func (t *Trader) skipBuy(ctx context.Context, symbol, reason string) {
	logger.Info("Вход пропущен", zap.String("symbol", symbol), zap.String("reason", reason))
	t.savePositionEvent(ctx, &models.PositionEvent{
		Symbol:    symbol,
		State:     models.PositionSkippedBuy,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// monitorPosition — состояние Entered: наблюдение цены в порядке опроса,
// пересчет цели прибыли по каденции тактов, выход по цели или стопу.
// Возврат только после подтвержденного выхода или остановки процесса.
func (t *Trader) monitorPosition(ctx context.Context, pos *models.Position) {
	mon := NewPositionMonitor(pos, t.cfg.Exit)

	ticker := time.NewTicker(time.Duration(t.cfg.Trading.MonitorIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.abandonPosition(pos)
			return
		case <-ticker.C:
			price, err := t.exch.GetPrice(ctx, pos.Symbol)
			if err != nil {
				// Клиент биржи уже повторял с ограниченной задержкой.
				// Сбой получения цены не меняет состояние позиции.
				logger.Warn("Не удалось получить цену при мониторинге",
					zap.String("symbol", pos.Symbol), zap.Error(err))
				continue
			}

			mon.Tick(price)

			if mon.NeedsRescore() {
				if score, err := t.analyzer.IndicatorScore(ctx, pos.Symbol); err != nil {
					logger.Warn("Пересчет уверенности недоступен",
						zap.String("symbol", pos.Symbol), zap.Error(err))
				} else {
					mon.Rescore(score)
					logger.Debug("Цель прибыли пересчитана",
						zap.String("symbol", pos.Symbol),
						zap.Float64("score", score),
						zap.Float64("take_profit_pct", pos.TakeProfitPct))
				}
			}

			reason := mon.ExitSignal(price)
			if reason == ExitNone {
				t.publishPosition(pos.Symbol, pos)
				continue
			}

			logger.Info("Сработало условие выхода",
				zap.String("symbol", pos.Symbol),
				zap.String("reason", reason.String()),
				zap.Float64("price", price),
				zap.Float64("dynamic_stop", mon.DynamicStop()),
				zap.Float64("take_profit_price", mon.TakeProfitPrice()))

			if t.exitPosition(ctx, mon, price, reason) {
				return
			}
			// Процесс остановлен до подтверждения выхода
			return
		}
	}
}

// exitPosition продает позицию целиком и повторяет попытки до
// подтвержденного исполнения. Позиция никогда не считается закрытой
// по неподтвержденному ордеру. Возвращает false только при остановке
// процесса до подтверждения.
func (t *Trader) exitPosition(ctx context.Context, mon *PositionMonitor, price float64, reason ExitReason) bool {
	pos := mon.Position()

	for attempt := 1; ; attempt++ {
		fill, err := t.exch.PlaceMarketOrder(ctx, pos.Symbol, "SELL", pos.Quantity)
		if err == nil && fill.Quantity > 0 {
			t.confirmExit(ctx, pos, fill, price, reason)
			return true
		}

		logger.Error("Ордер выхода не подтвержден, повтор",
			zap.String("symbol", pos.Symbol),
			zap.Int("attempt", attempt),
			zap.Error(err))
		t.notifier.Notify(ctx, fmt.Sprintf("Ордер выхода %s не подтвержден (попытка %d): %v",
			pos.Symbol, attempt, err))

		// После нескольких неудачных прямых продаж пробуем
		// конвертацию базового актива в котируемую валюту
		if attempt >= directExitAttempts {
			if fill := t.convertToQuote(ctx, pos); fill != nil {
				t.confirmExit(ctx, pos, fill, price, reason)
				return true
			}
		}

		select {
		case <-ctx.Done():
			t.abandonPosition(pos)
			return false
		case <-time.After(exitRetryDelay):
		}
	}
}

// convertToQuote — запасной выход: продажа фактического баланса
// базового актива против настроенной котируемой валюты
func (t *Trader) convertToQuote(ctx context.Context, pos *models.Position) *exchange.OrderFill {
	baseBalance, err := t.exch.GetBalance(ctx, pos.BaseAsset)
	if err != nil {
		logger.Warn("Конвертация: не удалось получить баланс базового актива",
			zap.String("asset", pos.BaseAsset), zap.Error(err))
		return nil
	}
	if baseBalance <= 0 {
		return nil
	}

	conversionSymbol := pos.BaseAsset + t.cfg.Trading.QuoteCurrency
	fill, err := t.exch.PlaceMarketOrder(ctx, conversionSymbol, "SELL", baseBalance)
	if err != nil {
		logger.Warn("Конвертация в котируемую валюту не удалась",
			zap.String("symbol", conversionSymbol), zap.Error(err))
		return nil
	}

	logger.Info("Базовый актив конвертирован в котируемую валюту",
		zap.String("symbol", conversionSymbol),
		zap.Float64("quantity", fill.Quantity))
	return fill
}

// confirmExit фиксирует подтвержденный выход: Entered -> Idle
func (t *Trader) confirmExit(ctx context.Context, pos *models.Position, fill *exchange.OrderFill, price float64, reason ExitReason) {
	t.balances.Invalidate(pos.QuoteAsset)
	t.balances.Invalidate(pos.BaseAsset)

	exitPrice := fill.AvgPrice
	if exitPrice <= 0 {
		exitPrice = price
	}
	profit := (exitPrice - pos.EntryPrice) * pos.Quantity

	state := models.PositionStopLoss
	if reason == ExitTakeProfit {
		state = models.PositionTakeProfit
	}

	logger.Info("Позиция закрыта",
		zap.String("symbol", pos.Symbol),
		zap.String("reason", reason.String()),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("profit", profit))
	t.notifier.Notify(ctx, fmt.Sprintf("Позиция %s закрыта (%s) по %.6f, результат %.4f %s",
		pos.Symbol, reason.String(), exitPrice, profit, pos.QuoteAsset))
	t.savePositionEvent(ctx, &models.PositionEvent{
		Symbol:    pos.Symbol,
		State:     state,
		Price:     exitPrice,
		Quantity:  pos.Quantity,
		Profit:    profit,
		Reason:    reason.String(),
		Timestamp: time.Now(),
	})
	t.publishPosition(pos.Symbol, nil)
}

// abandonPosition фиксирует остановку процесса с открытой позицией.
// Позиция не закрывается молча: событие уходит в хранилище и уведомления.
func (t *Trader) abandonPosition(pos *models.Position) {
	logger.Error("Процесс остановлен с открытой позицией",
		zap.String("symbol", pos.Symbol),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("quantity", pos.Quantity))

	// Контекст процесса уже отменен
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.notifier.Notify(ctx, fmt.Sprintf("ВНИМАНИЕ: остановка с открытой позицией %s (%.6f по %.6f)",
		pos.Symbol, pos.Quantity, pos.EntryPrice))
	t.savePositionEvent(ctx, &models.PositionEvent{
		Symbol:    pos.Symbol,
		State:     models.PositionAbandonedOpen,
		Price:     pos.EntryPrice,
		Quantity:  pos.Quantity,
		Timestamp: time.Now(),
	})
}

// liquidateBase — сигнал продажи без открытой позиции:
// продажа остатка базового актива, как это делал исходный бот
func (t *Trader) liquidateBase(ctx context.Context, symbol string) {
	rule, err := t.exch.SymbolRule(ctx, symbol)
	if err != nil {
		logger.Warn("Ликвидация: не удалось получить ограничения пары",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}

	baseBalance, err := t.exch.GetBalance(ctx, rule.BaseAsset)
	if err != nil {
		logger.Warn("Ликвидация: не удалось получить баланс",
			zap.String("asset", rule.BaseAsset), zap.Error(err))
		return
	}
	if baseBalance <= 0 {
		return
	}

	price, err := t.exch.GetPrice(ctx, symbol)
	if err != nil {
		logger.Warn("Ликвидация: нет цены", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if baseBalance*price < rule.MinNotional {
		logger.Debug("Ликвидация: остаток ниже минимального объема",
			zap.String("symbol", symbol), zap.Float64("balance", baseBalance))
		return
	}

	fill, err := t.exch.PlaceMarketOrder(ctx, symbol, "SELL", baseBalance)
	if err != nil {
		logger.Error("Ликвидация не удалась", zap.String("symbol", symbol), zap.Error(err))
		t.notifier.Notify(ctx, fmt.Sprintf("Продажа %s не удалась: %v", symbol, err))
		return
	}

	t.balances.Invalidate(rule.BaseAsset)
	t.balances.Invalidate(rule.QuoteAsset)
	t.notifier.Notify(ctx, fmt.Sprintf("Продан остаток %s: %.6f", symbol, fill.Quantity))
}

func (t *Trader) savePositionEvent(ctx context.Context, event *models.PositionEvent) {
	if t.store == nil {
		return
	}
	if err := t.store.SavePositionEvent(ctx, event); err != nil {
		logger.Warn("Не удалось сохранить событие позиции",
			zap.String("symbol", event.Symbol), zap.Error(err))
	}
}

func (t *Trader) publishSignal(signal *models.SignalResult) {
	if t.sink != nil {
		t.sink.UpdateSignal(signal)
	}
}

func (t *Trader) publishPosition(symbol string, pos *models.Position) {
	if t.sink != nil {
		t.sink.UpdatePosition(symbol, pos)
	}
}
