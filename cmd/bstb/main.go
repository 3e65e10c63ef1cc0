package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/skalibog/bstb/internal/analysis/aggregator"
	"github.com/skalibog/bstb/internal/backtest"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/internal/exchange"
	"github.com/skalibog/bstb/internal/notify"
	"github.com/skalibog/bstb/internal/storage"
	"github.com/skalibog/bstb/internal/trading"
	"github.com/skalibog/bstb/internal/ui"
	"github.com/skalibog/bstb/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	backtestCSV := flag.String("backtest", "", "путь к CSV с историей для бэктеста")
	backtestSymbol := flag.String("symbol", "BTCUSDT", "символ для бэктеста")
	backtestBalance := flag.Float64("balance", 1000, "начальный баланс бэктеста")
	flag.Parse()

	// Секреты из .env, если файл присутствует
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Не удалось загрузить .env", zap.Error(err))
	}

	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Режим бэктеста: прогон истории и выход
	if *backtestCSV != "" {
		runBacktest(cfg, *backtestCSV, *backtestSymbol, *backtestBalance)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Обработка сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Хранилище истории сигналов и событий позиций
	store, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Уведомления
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			logger.Fatal("Ошибка инициализации Telegram", zap.Error(err))
		}
		notifier = tg
	}

	// Список символов: статический или сканирование по котируемой валюте
	symbols := cfg.Trading.Symbols
	if cfg.Trading.UseQuoteScan {
		symbols, err = client.LoadSymbols(ctx, cfg.Trading.QuoteCurrency)
		if err != nil {
			logger.Fatal("Ошибка загрузки торгуемых пар", zap.Error(err))
		}
	}
	if len(symbols) == 0 {
		logger.Fatal("Нет символов для отслеживания")
	}

	analyzer := aggregator.NewAnalyzer(cfg.Strategy, client, store)

	var userInterface *ui.TermUI
	var sink trading.StatusSink
	if cfg.UI.Enabled {
		userInterface = ui.NewTermUI(cfg.UI)
		sink = userInterface
	}

	trader := trading.New(cfg, client, analyzer, store, notifier, sink)

	// Трейдер в горутинах; UI, если включен, блокирует основной поток
	go func() {
		if err := trader.Run(ctx, symbols); err != nil {
			logger.Error("Трейдер завершился с ошибкой", zap.Error(err))
		}
	}()

	if userInterface != nil {
		if err := userInterface.Start(); err != nil {
			logger.Error("Ошибка работы UI", zap.Error(err))
		}
		cancel()
		time.Sleep(2 * time.Second)
		return
	}

	<-ctx.Done()
}

// runBacktest прогоняет историю через конвейер стратегии
func runBacktest(cfg *config.Config, csvPath, symbol string, balance float64) {
	interval := "1h"
	if len(cfg.Strategy.Timeframes) > 0 {
		interval = cfg.Strategy.Timeframes[0]
	}

	candles, err := backtest.LoadCSV(csvPath, symbol, interval)
	if err != nil {
		logger.Fatal("Ошибка загрузки истории", zap.Error(err))
	}
	logger.Info("История загружена",
		zap.String("path", csvPath),
		zap.Int("candles", len(candles)))

	result, err := backtest.New(cfg, balance).Run(candles)
	if err != nil {
		logger.Fatal("Ошибка бэктеста", zap.Error(err))
	}
	result.Report()
}
