package trading

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/internal/exchange"
	"github.com/skalibog/bstb/internal/notify"
	"github.com/skalibog/bstb/pkg/models"
)

// placedOrder — размещенный фейковой биржей ордер
type placedOrder struct {
	symbol   string
	side     string
	quantity float64
}

// fakeExchange — биржа для тестов трейдера
type fakeExchange struct {
	mu       sync.Mutex
	price    float64
	priceErr error
	balances map[string]float64
	fill     *exchange.OrderFill
	orderErr error
	rule     *exchange.SymbolRule
	orders   []placedOrder
}

func (f *fakeExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.price, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context, asset string) (float64, error) {
	return f.balances[asset], nil
}

func (f *fakeExchange) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) (*exchange.OrderFill, error) {
	f.mu.Lock()
	f.orders = append(f.orders, placedOrder{symbol: symbol, side: side, quantity: quantity})
	f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	return f.fill, nil
}

func (f *fakeExchange) SymbolRule(ctx context.Context, symbol string) (*exchange.SymbolRule, error) {
	return f.rule, nil
}

func (f *fakeExchange) placedOrders() []placedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]placedOrder(nil), f.orders...)
}

// fakeScorer возвращает фиксированную уверенность
type fakeScorer struct {
	score float64
}

func (f *fakeScorer) Evaluate(ctx context.Context, symbol string) (*models.SignalResult, error) {
	return &models.SignalResult{Symbol: symbol}, nil
}

func (f *fakeScorer) IndicatorScore(ctx context.Context, symbol string) (float64, error) {
	return f.score, nil
}

// fakeSink запоминает обновления статуса
type fakeSink struct {
	mu        sync.Mutex
	signals   []*models.SignalResult
	positions map[string]*models.Position
}

func newFakeSink() *fakeSink {
	return &fakeSink{positions: make(map[string]*models.Position)}
}

func (f *fakeSink) UpdateSignal(signal *models.SignalResult) {
	f.mu.Lock()
	f.signals = append(f.signals, signal)
	f.mu.Unlock()
}

func (f *fakeSink) UpdatePosition(symbol string, pos *models.Position) {
	f.mu.Lock()
	if pos == nil {
		delete(f.positions, symbol)
	} else {
		f.positions[symbol] = pos
	}
	f.mu.Unlock()
}

func testTraderConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			QuoteCurrency:          "USDT",
			PollIntervalSeconds:    60,
			MonitorIntervalSeconds: 60,
		},
		Exit: config.ExitConfig{
			StopLossBuffer:    0.02,
			InitialTakeProfit: 0.05,
			ProfitFloor:       0.01,
			MaxTakeProfit:     0.30,
			ProfitStep:        0.005,
			RescoreEveryTicks: 5,
			MinInvestment:     5.0,
			CommissionRate:    0.001,
		},
		Balance: config.BalanceConfig{TTLSeconds: 60},
	}
}

func btcRule() *exchange.SymbolRule {
	return &exchange.SymbolRule{
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		StepSize:    0.00001,
		MinQty:      0.00001,
		MinNotional: 10,
	}
}

func newTestTrader(exch *fakeExchange, sink StatusSink) *Trader {
	return New(testTraderConfig(), exch, &fakeScorer{score: 0.5}, nil, notify.NopNotifier{}, sink)
}

func TestEnterPositionOpensOnConfirmedFill(t *testing.T) {
	exch := &fakeExchange{
		balances: map[string]float64{"USDT": 1000},
		rule:     btcRule(),
		fill: &exchange.OrderFill{
			Symbol:   "BTCUSDT",
			Side:     "BUY",
			Quantity: 9.99,
			AvgPrice: 100.5,
		},
	}
	sink := newFakeSink()
	tr := newTestTrader(exch, sink)

	signal := &models.SignalResult{Symbol: "BTCUSDT", Action: models.ActionBuy, BestAsk: 100}
	pos := tr.enterPosition(context.Background(), "BTCUSDT", signal)
	if pos == nil {
		t.Fatal("позиция должна открыться")
	}

	if pos.EntryPrice != 100.5 {
		t.Errorf("цена входа %v, ожидалась средняя цена исполнения 100.5", pos.EntryPrice)
	}
	if pos.Quantity != 9.99 {
		t.Errorf("количество %v, ожидалось исполненное 9.99", pos.Quantity)
	}
	if pos.BaseAsset != "BTC" || pos.QuoteAsset != "USDT" {
		t.Errorf("активы позиции %s/%s", pos.BaseAsset, pos.QuoteAsset)
	}

	orders := exch.placedOrders()
	if len(orders) != 1 {
		t.Fatalf("ордеров %d, ожидался 1", len(orders))
	}
	if orders[0].side != "BUY" || orders[0].symbol != "BTCUSDT" {
		t.Errorf("неожиданный ордер %+v", orders[0])
	}
	// Количество из доступного баланса за вычетом комиссии
	want := 1000 * (1 - 0.001) / 100.0
	if orders[0].quantity != want {
		t.Errorf("количество ордера %v, ожидалось %v", orders[0].quantity, want)
	}

	if sink.positions["BTCUSDT"] == nil {
		t.Error("открытая позиция должна публиковаться в UI")
	}
}

func TestEnterPositionSkipsLowBalance(t *testing.T) {
	exch := &fakeExchange{
		balances: map[string]float64{"USDT": 4},
		rule:     btcRule(),
	}
	tr := newTestTrader(exch, nil)

	signal := &models.SignalResult{Symbol: "BTCUSDT", BestAsk: 100}
	if pos := tr.enterPosition(context.Background(), "BTCUSDT", signal); pos != nil {
		t.Error("вход при балансе ниже минимальной инвестиции должен пропускаться")
	}
	if len(exch.placedOrders()) != 0 {
		t.Error("ордер не должен размещаться")
	}
}

func TestEnterPositionSkipsBelowMinNotional(t *testing.T) {
	rule := btcRule()
	rule.MinNotional = 100000
	exch := &fakeExchange{
		balances: map[string]float64{"USDT": 1000},
		rule:     rule,
	}
	tr := newTestTrader(exch, nil)

	signal := &models.SignalResult{Symbol: "BTCUSDT", BestAsk: 100}
	if pos := tr.enterPosition(context.Background(), "BTCUSDT", signal); pos != nil {
		t.Error("вход ниже минимального объема должен пропускаться")
	}
	if len(exch.placedOrders()) != 0 {
		t.Error("ордер не должен размещаться")
	}
}

func TestEnterPositionStaysIdleOnRejectedOrder(t *testing.T) {
	exch := &fakeExchange{
		balances: map[string]float64{"USDT": 1000},
		rule:     btcRule(),
		orderErr: fmt.Errorf("ордер отклонен биржей"),
	}
	sink := newFakeSink()
	tr := newTestTrader(exch, sink)

	signal := &models.SignalResult{Symbol: "BTCUSDT", BestAsk: 100}
	if pos := tr.enterPosition(context.Background(), "BTCUSDT", signal); pos != nil {
		t.Error("отклоненный ордер не должен открывать позицию")
	}
	if sink.positions["BTCUSDT"] != nil {
		t.Error("позиция не должна публиковаться при отклоненном ордере")
	}
}

func TestEnterPositionFallsBackToTickerPrice(t *testing.T) {
	// Без лучшего аска в сигнале количество считается по текущей цене
	exch := &fakeExchange{
		price:    200,
		balances: map[string]float64{"USDT": 1000},
		rule:     btcRule(),
		fill:     &exchange.OrderFill{Quantity: 4.995, AvgPrice: 200},
	}
	tr := newTestTrader(exch, nil)

	signal := &models.SignalResult{Symbol: "BTCUSDT"}
	pos := tr.enterPosition(context.Background(), "BTCUSDT", signal)
	if pos == nil {
		t.Fatal("позиция должна открыться")
	}

	orders := exch.placedOrders()
	want := 1000 * (1 - 0.001) / 200.0
	if orders[0].quantity != want {
		t.Errorf("количество ордера %v, ожидалось %v", orders[0].quantity, want)
	}
}

func TestLiquidateBaseSellsLeftover(t *testing.T) {
	exch := &fakeExchange{
		price:    100,
		balances: map[string]float64{"BTC": 2},
		rule:     btcRule(),
		fill:     &exchange.OrderFill{Quantity: 2, AvgPrice: 100},
	}
	tr := newTestTrader(exch, nil)

	tr.liquidateBase(context.Background(), "BTCUSDT")

	orders := exch.placedOrders()
	if len(orders) != 1 {
		t.Fatalf("ордеров %d, ожидался 1", len(orders))
	}
	if orders[0].side != "SELL" || orders[0].quantity != 2 {
		t.Errorf("неожиданный ордер %+v", orders[0])
	}
}

func TestLiquidateBaseSkipsDust(t *testing.T) {
	// Остаток ниже минимального объема не продается
	exch := &fakeExchange{
		price:    100,
		balances: map[string]float64{"BTC": 0.05},
		rule:     btcRule(),
	}
	tr := newTestTrader(exch, nil)

	tr.liquidateBase(context.Background(), "BTCUSDT")
	if len(exch.placedOrders()) != 0 {
		t.Error("пыль не должна продаваться")
	}
}

func TestLiquidateBaseSkipsZeroBalance(t *testing.T) {
	exch := &fakeExchange{
		price:    100,
		balances: map[string]float64{},
		rule:     btcRule(),
	}
	tr := newTestTrader(exch, nil)

	tr.liquidateBase(context.Background(), "BTCUSDT")
	if len(exch.placedOrders()) != 0 {
		t.Error("нулевой баланс не должен порождать ордер")
	}
}
