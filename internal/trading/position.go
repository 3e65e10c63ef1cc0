package trading

import (
	"time"

	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/internal/exchange"
	"github.com/skalibog/bstb/pkg/models"
)

// ExitReason — причина закрытия позиции
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitTakeProfit
	ExitStopLoss
)

func (r ExitReason) String() string {
	switch r {
	case ExitTakeProfit:
		return "take_profit"
	case ExitStopLoss:
		return "stop_loss"
	default:
		return "none"
	}
}

// NewPosition создает позицию по подтвержденному входу
func NewPosition(rule *exchange.SymbolRule, entryPrice, quantity float64, cfg config.ExitConfig) *models.Position {
	return &models.Position{
		Symbol:        rule.Symbol,
		BaseAsset:     rule.BaseAsset,
		QuoteAsset:    rule.QuoteAsset,
		EntryPrice:    entryPrice,
		Quantity:      quantity,
		HighestPrice:  entryPrice,
		BaseStopLoss:  entryPrice * (1 - cfg.StopLossBuffer),
		TakeProfitPct: cfg.InitialTakeProfit,
		OpenedAt:      time.Now(),
	}
}

// PositionMonitor — машина состояний выхода из позиции.
// Наблюдения цены обрабатываются строго в порядке опроса:
// максимум с момента входа корректен только без переупорядочивания.
type PositionMonitor struct {
	pos *models.Position
	cfg config.ExitConfig
}

// NewPositionMonitor создает монитор открытой позиции
func NewPositionMonitor(pos *models.Position, cfg config.ExitConfig) *PositionMonitor {
	return &PositionMonitor{pos: pos, cfg: cfg}
}

// Position возвращает отслеживаемую позицию
func (m *PositionMonitor) Position() *models.Position {
	return m.pos
}

// Tick регистрирует очередное наблюдение цены.
// Максимум цены не убывает по построению.
func (m *PositionMonitor) Tick(price float64) {
	m.pos.Ticks++
	if price > m.pos.HighestPrice {
		m.pos.HighestPrice = price
	}
}

// DynamicStop возвращает действующий стоп: скользящий стоп от максимума,
// но не ниже стопа, зафиксированного при входе.
func (m *PositionMonitor) DynamicStop() float64 {
	trailing := m.pos.HighestPrice * (1 - m.cfg.StopLossBuffer)
	if trailing > m.pos.BaseStopLoss {
		return trailing
	}
	return m.pos.BaseStopLoss
}

// TakeProfitPrice возвращает текущую цену цели прибыли
func (m *PositionMonitor) TakeProfitPrice() float64 {
	return m.pos.EntryPrice * (1 + m.pos.TakeProfitPct)
}

// NeedsRescore сообщает, что настал такт пересчета цели прибыли.
// Каденция считается тактами наблюдения, не настенными часами.
func (m *PositionMonitor) NeedsRescore() bool {
	return m.cfg.RescoreEveryTicks > 0 && m.pos.Ticks%m.cfg.RescoreEveryTicks == 0
}

// Rescore сдвигает цель прибыли по свежей уверенности индикаторов.
// score из [0,1] переводится в [-1,1] как 2·score−1; шаг ограничен
// коридором [profit_floor, max_take_profit]. Это единственный механизм
// изменения цели прибыли.
func (m *PositionMonitor) Rescore(score float64) {
	signed := 2*score - 1
	tp := m.pos.TakeProfitPct + signed*m.cfg.ProfitStep
	if tp < m.cfg.ProfitFloor {
		tp = m.cfg.ProfitFloor
	}
	if tp > m.cfg.MaxTakeProfit {
		tp = m.cfg.MaxTakeProfit
	}
	m.pos.TakeProfitPct = tp
}

// ExitSignal проверяет условия выхода на наблюдаемой цене
func (m *PositionMonitor) ExitSignal(price float64) ExitReason {
	if price >= m.TakeProfitPrice() {
		return ExitTakeProfit
	}
	if price <= m.DynamicStop() {
		return ExitStopLoss
	}
	return ExitNone
}
