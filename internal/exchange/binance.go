package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/logger"
	"github.com/skalibog/bstb/pkg/models"
	"go.uber.org/zap"
)

// BinanceClient — клиент спотового рынка Binance
type BinanceClient struct {
	spot *binance.Client

	rulesMu sync.RWMutex
	rules   map[string]*SymbolRule
}

// OrderFill — подтвержденное исполнение рыночного ордера
type OrderFill struct {
	Symbol        string
	Side          string
	OrderID       int64
	Quantity      float64
	AvgPrice      float64
	QuoteQuantity float64
}

// SymbolRule — биржевые ограничения торговой пары
type SymbolRule struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	StepSize    float64
	MinQty      float64
	MinNotional float64
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("не заданы ключи Binance API")
	}

	binance.UseTestnet = cfg.Testnet
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)

	return &BinanceClient{
		spot:  client,
		rules: make(map[string]*SymbolRule),
	}, nil
}

// LoadSymbols возвращает торгуемые пары с заданной котируемой валютой
func (c *BinanceClient) LoadSymbols(ctx context.Context, quote string) ([]string, error) {
	var info *binance.ExchangeInfo
	err := withRetry(ctx, "exchangeInfo", func() error {
		var e error
		info, e = c.spot.NewExchangeInfoService().Do(ctx)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки информации о бирже: %w", err)
	}

	var symbols []string
	for i := range info.Symbols {
		s := &info.Symbols[i]
		if s.Status != "TRADING" || s.QuoteAsset != quote {
			continue
		}
		symbols = append(symbols, s.Symbol)
		c.cacheRule(s)
	}

	logger.Info("Загружены торгуемые пары",
		zap.String("quote", quote),
		zap.Int("count", len(symbols)))
	return symbols, nil
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	var klines []*binance.Kline
	err := withRetry(ctx, "klines", func() error {
		var e error
		klines, e = c.spot.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]*models.Candle, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		cls, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, fmt.Errorf("ошибка разбора свечи %s %s", symbol, interval)
		}

		candles = append(candles, &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.Unix(k.OpenTime/1000, 0),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    volume,
			CloseTime: time.Unix(k.CloseTime/1000, 0),
		})
	}

	return candles, nil
}

// GetOrderBook получает стакан заявок
func (c *BinanceClient) GetOrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error) {
	var ob *binance.DepthResponse
	err := withRetry(ctx, "depth", func() error {
		var e error
		ob, e = c.spot.NewDepthService().
			Symbol(symbol).
			Limit(limit).
			Do(ctx)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения стакана: %w", err)
	}

	orderBook := &models.OrderBook{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Bids:      make([]models.OrderBookLevel, len(ob.Bids)),
		Asks:      make([]models.OrderBookLevel, len(ob.Asks)),
	}

	for i, bid := range ob.Bids {
		orderBook.Bids[i] = models.OrderBookLevel{
			Price:  bid.Price,
			Amount: bid.Quantity,
		}
	}

	for i, ask := range ob.Asks {
		orderBook.Asks[i] = models.OrderBookLevel{
			Price:  ask.Price,
			Amount: ask.Quantity,
		}
	}

	return orderBook, nil
}

// GetPrice получает последнюю цену символа
func (c *BinanceClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var prices []*binance.SymbolPrice
	err := withRetry(ctx, "tickerPrice", func() error {
		var e error
		prices, e = c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
		return e
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка получения цены: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("нет данных о цене для %s", symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("ошибка разбора цены %s: %w", symbol, err)
	}
	return price, nil
}

// GetBalance получает доступный баланс актива
func (c *BinanceClient) GetBalance(ctx context.Context, asset string) (float64, error) {
	var account *binance.Account
	err := withRetry(ctx, "account", func() error {
		var e error
		account, e = c.spot.NewGetAccountService().Do(ctx)
		return e
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}

	for _, b := range account.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return 0, fmt.Errorf("ошибка разбора баланса %s: %w", asset, err)
		}
		return free, nil
	}

	return 0, nil
}

// PlaceMarketOrder размещает рыночный ордер.
// Количество обрезается до шага лота пары.
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) (*OrderFill, error) {
	rule, err := c.SymbolRule(ctx, symbol)
	if err != nil {
		return nil, err
	}

	qty := truncateToStep(quantity, rule.StepSize)
	if qty.IsZero() || qty.IsNegative() {
		return nil, fmt.Errorf("количество %v после обрезки до шага лота %v стало нулевым",
			quantity, rule.StepSize)
	}

	sideType := binance.SideTypeBuy
	if side == "SELL" {
		sideType = binance.SideTypeSell
	}

	var resp *binance.CreateOrderResponse
	err = withRetry(ctx, "createOrder", func() error {
		var e error
		resp, e = c.spot.NewCreateOrderService().
			Symbol(symbol).
			Side(sideType).
			Type(binance.OrderTypeMarket).
			Quantity(qty.String()).
			NewClientOrderID("bstb-" + uuid.NewString()).
			Do(ctx)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка размещения ордера %s %s: %w", side, symbol, err)
	}

	fill := &OrderFill{
		Symbol:  symbol,
		Side:    side,
		OrderID: resp.OrderID,
	}
	if v, err := strconv.ParseFloat(resp.ExecutedQuantity, 64); err == nil {
		fill.Quantity = v
	}
	if v, err := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64); err == nil {
		fill.QuoteQuantity = v
	}
	// Средняя цена исполнения из частичных заполнений; при их отсутствии
	// остается 0, вызывающая сторона подставит приближение
	if fill.Quantity > 0 && fill.QuoteQuantity > 0 {
		fill.AvgPrice = fill.QuoteQuantity / fill.Quantity
	}

	logger.Info("Размещен рыночный ордер",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("quantity", fill.Quantity),
		zap.Float64("avg_price", fill.AvgPrice))

	return fill, nil
}

// SymbolRule возвращает биржевые ограничения пары, кэшируя их
func (c *BinanceClient) SymbolRule(ctx context.Context, symbol string) (*SymbolRule, error) {
	c.rulesMu.RLock()
	rule, ok := c.rules[symbol]
	c.rulesMu.RUnlock()
	if ok {
		return rule, nil
	}

	var info *binance.ExchangeInfo
	err := withRetry(ctx, "exchangeInfo", func() error {
		var e error
		info, e = c.spot.NewExchangeInfoService().Symbol(symbol).Do(ctx)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ограничений пары %s: %w", symbol, err)
	}

	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			return c.cacheRule(&info.Symbols[i]), nil
		}
	}

	return nil, fmt.Errorf("пара %s не найдена на бирже", symbol)
}

// cacheRule разбирает фильтры пары и кладет ограничения в кэш
func (c *BinanceClient) cacheRule(s *binance.Symbol) *SymbolRule {
	rule := &SymbolRule{
		Symbol:     s.Symbol,
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
	}

	for _, f := range s.Filters {
		filterType, _ := f["filterType"].(string)
		switch filterType {
		case "LOT_SIZE":
			rule.StepSize = filterFloat(f, "stepSize")
			rule.MinQty = filterFloat(f, "minQty")
		case "MIN_NOTIONAL":
			rule.MinNotional = filterFloat(f, "minNotional")
		case "NOTIONAL":
			// Новое имя фильтра на спотовом рынке
			rule.MinNotional = filterFloat(f, "minNotional")
		}
	}

	c.rulesMu.Lock()
	c.rules[s.Symbol] = rule
	c.rulesMu.Unlock()
	return rule
}

func filterFloat(filter map[string]interface{}, key string) float64 {
	raw, _ := filter[key].(string)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

// truncateToStep обрезает количество вниз до кратного шагу лота
func truncateToStep(quantity, step float64) decimal.Decimal {
	qty := decimal.NewFromFloat(quantity)
	if step <= 0 {
		return qty
	}
	stepDec := decimal.NewFromFloat(step)
	return qty.Div(stepDec).Floor().Mul(stepDec)
}
