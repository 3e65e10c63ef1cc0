package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// OrderBookLevel представляет уровень стакана.
// Цена и объем хранятся строками, как их отдает биржа.
type OrderBookLevel struct {
	Price  string
	Amount string
}

// OrderBook представляет стакан заявок
type OrderBook struct {
	Symbol    string
	Timestamp time.Time
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// Action — итоговое торговое действие цикла оценки
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

// SignalResult представляет результат одного цикла оценки символа
type SignalResult struct {
	Symbol          string
	Timestamp       time.Time
	Action          Action
	BuyScore        float64
	SellScore       float64
	OrderBookSignal bool
	BidRatio        float64
	BidVolume       float64
	AskVolume       float64
	Spread          float64
	BestAsk         float64
	BestBid         float64
	CurrentPrice    float64
	// Уверенность по таймфреймам: "<tf>_buy" и "<tf>_sell"
	Components map[string]float64
}

// Position представляет открытую позицию
type Position struct {
	Symbol        string
	BaseAsset     string
	QuoteAsset    string
	EntryPrice    float64
	Quantity      float64
	HighestPrice  float64
	BaseStopLoss  float64
	TakeProfitPct float64
	OpenedAt      time.Time
	Ticks         int
}

// Состояния жизненного цикла позиции для событий
const (
	PositionOpened        = "opened"
	PositionTakeProfit    = "exit_take_profit"
	PositionStopLoss      = "exit_stop_loss"
	PositionAbandonedOpen = "abandoned_open"
	PositionSkippedBuy    = "skipped_buy"
)

// PositionEvent представляет событие жизненного цикла позиции
type PositionEvent struct {
	Symbol    string
	State     string
	Price     float64
	Quantity  float64
	Profit    float64
	Reason    string
	Timestamp time.Time
}
