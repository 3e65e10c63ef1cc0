package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Strategy StrategyConfig `yaml:"strategy"`
	Exit     ExitConfig     `yaml:"exit"`
	Balance  BalanceConfig  `yaml:"balance"`
	Storage  StorageConfig  `yaml:"storage"`
	Telegram TelegramConfig `yaml:"telegram"`
	UI       UIConfig       `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbols                []string `yaml:"symbols"`
	QuoteCurrency          string   `yaml:"quote_currency"`
	UseQuoteScan           bool     `yaml:"use_quote_scan"`
	PollIntervalSeconds    int      `yaml:"poll_interval_seconds"`
	MonitorIntervalSeconds int      `yaml:"monitor_interval_seconds"`
}

// StrategyConfig содержит настройки стратегии принятия решений
type StrategyConfig struct {
	Timeframes       []string           `yaml:"timeframes"`
	TimeframeWeights map[string]float64 `yaml:"timeframe_weights"`
	ConditionWeights ConditionWeights   `yaml:"condition_weights"`
	BuyThreshold     float64            `yaml:"buy_threshold"`
	SellThreshold    float64            `yaml:"sell_threshold"`
	CandleLimit      int                `yaml:"candle_limit"`
	OrderBook        OrderBookConfig    `yaml:"orderbook"`
	Technical        TechnicalConfig    `yaml:"technical"`
}

// ConditionWeights веса предикатов по направлениям
type ConditionWeights struct {
	Buy  map[string]float64 `yaml:"buy"`
	Sell map[string]float64 `yaml:"sell"`
}

// OrderBookConfig настройки анализа стакана
type OrderBookConfig struct {
	Depth             int     `yaml:"depth"`
	PressureThreshold float64 `yaml:"pressure_threshold"`
}

// TechnicalConfig периоды технических индикаторов
type TechnicalConfig struct {
	RSIPeriod  int `yaml:"rsi_period"`
	BBPeriod   int `yaml:"bb_period"`
	MACDFast   int `yaml:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow"`
	MACDSignal int `yaml:"macd_signal"`
	ADXPeriod  int `yaml:"adx_period"`
	MFIPeriod  int `yaml:"mfi_period"`
	ATRPeriod  int `yaml:"atr_period"`
	MAPeriod   int `yaml:"ma_period"`
}

// ExitConfig настройки выхода из позиции
type ExitConfig struct {
	StopLossBuffer    float64 `yaml:"stop_loss_buffer"`
	InitialTakeProfit float64 `yaml:"initial_take_profit"`
	ProfitFloor       float64 `yaml:"profit_floor"`
	MaxTakeProfit     float64 `yaml:"max_take_profit"`
	ProfitStep        float64 `yaml:"profit_step"`
	RescoreEveryTicks int     `yaml:"rescore_every_ticks"`
	MinInvestment     float64 `yaml:"min_investment"`
	CommissionRate    float64 `yaml:"commission_rate"`
}

// BalanceConfig настройки кэша балансов
type BalanceConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Type         string `yaml:"type"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// TelegramConfig настройки уведомлений
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	Enabled     bool `yaml:"enabled"`
	RefreshRate int  `yaml:"refresh_rate_ms"`
}

// Load загружает конфигурацию из файла.
// Секреты могут приходить из окружения и перекрывают пустые значения yaml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyEnv подставляет секреты из окружения, если в yaml они не заданы
func (c *Config) applyEnv() {
	if c.Binance.APIKey == "" {
		c.Binance.APIKey = os.Getenv("BINANCE_API_KEY")
	}
	if c.Binance.APISecret == "" {
		c.Binance.APISecret = os.Getenv("BINANCE_API_SECRET")
	}
	if c.Telegram.Token == "" {
		c.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	}
	if c.Telegram.ChatID == "" {
		c.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
}

// applyDefaults заполняет незаданные значения
func (c *Config) applyDefaults() {
	if c.Trading.QuoteCurrency == "" {
		c.Trading.QuoteCurrency = "USDT"
	}
	if c.Trading.PollIntervalSeconds == 0 {
		c.Trading.PollIntervalSeconds = 60
	}
	if c.Trading.MonitorIntervalSeconds == 0 {
		c.Trading.MonitorIntervalSeconds = 60
	}
	if len(c.Strategy.Timeframes) == 0 {
		c.Strategy.Timeframes = []string{"1m", "3m", "5m", "15m", "30m", "1h"}
	}
	if c.Strategy.CandleLimit == 0 {
		c.Strategy.CandleLimit = 250
	}
	if c.Strategy.BuyThreshold == 0 {
		c.Strategy.BuyThreshold = 0.6
	}
	if c.Strategy.SellThreshold == 0 {
		c.Strategy.SellThreshold = 0.6
	}
	if c.Strategy.OrderBook.Depth == 0 {
		c.Strategy.OrderBook.Depth = 100
	}
	if c.Strategy.OrderBook.PressureThreshold == 0 {
		c.Strategy.OrderBook.PressureThreshold = 0.65
	}

	t := &c.Strategy.Technical
	if t.RSIPeriod == 0 {
		t.RSIPeriod = 14
	}
	if t.BBPeriod == 0 {
		t.BBPeriod = 5
	}
	if t.MACDFast == 0 {
		t.MACDFast = 12
	}
	if t.MACDSlow == 0 {
		t.MACDSlow = 26
	}
	if t.MACDSignal == 0 {
		t.MACDSignal = 9
	}
	if t.ADXPeriod == 0 {
		t.ADXPeriod = 14
	}
	if t.MFIPeriod == 0 {
		t.MFIPeriod = 14
	}
	if t.ATRPeriod == 0 {
		t.ATRPeriod = 14
	}
	if t.MAPeriod == 0 {
		t.MAPeriod = 200
	}

	e := &c.Exit
	if e.StopLossBuffer == 0 {
		e.StopLossBuffer = 0.02
	}
	if e.InitialTakeProfit == 0 {
		e.InitialTakeProfit = 0.05
	}
	if e.ProfitFloor == 0 {
		e.ProfitFloor = 0.01
	}
	if e.MaxTakeProfit == 0 {
		e.MaxTakeProfit = 0.30
	}
	if e.ProfitStep == 0 {
		e.ProfitStep = 0.005
	}
	if e.RescoreEveryTicks == 0 {
		e.RescoreEveryTicks = 5
	}
	if e.MinInvestment == 0 {
		e.MinInvestment = 5.0
	}
	if e.CommissionRate == 0 {
		e.CommissionRate = 0.001
	}

	if c.Balance.TTLSeconds == 0 {
		c.Balance.TTLSeconds = 60
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}
	if c.UI.RefreshRate == 0 {
		c.UI.RefreshRate = 1000
	}
}

// Validate проверяет конфигурацию. Ошибки здесь фатальны для процесса.
// Наличие ключей биржи проверяет конструктор клиента: бэктест работает без них.
func (c *Config) Validate() error {
	if !c.Trading.UseQuoteScan && len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("не задан список символов и выключен сканер по котируемой валюте")
	}
	if c.Strategy.BuyThreshold <= 0 || c.Strategy.BuyThreshold > 1 {
		return fmt.Errorf("buy_threshold должен быть в (0,1], задано %v", c.Strategy.BuyThreshold)
	}
	if c.Strategy.SellThreshold <= 0 || c.Strategy.SellThreshold > 1 {
		return fmt.Errorf("sell_threshold должен быть в (0,1], задано %v", c.Strategy.SellThreshold)
	}
	for tf, w := range c.Strategy.TimeframeWeights {
		if w < 0 {
			return fmt.Errorf("вес таймфрейма %s отрицательный: %v", tf, w)
		}
	}
	for name, w := range c.Strategy.ConditionWeights.Buy {
		if w < 0 {
			return fmt.Errorf("вес условия покупки %s отрицательный: %v", name, w)
		}
	}
	for name, w := range c.Strategy.ConditionWeights.Sell {
		if w < 0 {
			return fmt.Errorf("вес условия продажи %s отрицательный: %v", name, w)
		}
	}
	e := c.Exit
	if e.StopLossBuffer <= 0 || e.StopLossBuffer >= 1 {
		return fmt.Errorf("stop_loss_buffer должен быть в (0,1), задано %v", e.StopLossBuffer)
	}
	if e.ProfitFloor > e.InitialTakeProfit || e.InitialTakeProfit > e.MaxTakeProfit {
		return fmt.Errorf("требуется profit_floor <= initial_take_profit <= max_take_profit")
	}
	if e.CommissionRate < 0 || e.CommissionRate >= 1 {
		return fmt.Errorf("commission_rate должен быть в [0,1), задано %v", e.CommissionRate)
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("включен Telegram, но не заданы token/chat_id")
	}
	return nil
}
