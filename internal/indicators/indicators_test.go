package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

func testTechnicalConfig() config.TechnicalConfig {
	return config.TechnicalConfig{
		RSIPeriod:  5,
		BBPeriod:   3,
		MACDFast:   3,
		MACDSlow:   6,
		MACDSignal: 3,
		ADXPeriod:  5,
		MFIPeriod:  5,
		ATRPeriod:  5,
		MAPeriod:   10,
	}
}

func testCandles(n int) []*models.Candle {
	candles := make([]*models.Candle, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100 + 10*math.Sin(float64(i)/5)
		candles[i] = &models.Candle{
			Symbol:   "BTCUSDT",
			Interval: "1m",
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     c - 0.5,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   100 + float64(i%7),
		}
	}
	return candles
}

func TestComputeEmptySeries(t *testing.T) {
	if _, err := Compute(nil, testTechnicalConfig()); err == nil {
		t.Error("ожидалась ошибка на пустом ряде")
	}
}

func TestComputeLengthAndMeta(t *testing.T) {
	candles := testCandles(60)
	s, err := Compute(candles, testTechnicalConfig())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if s.Len() != 60 {
		t.Errorf("длина ряда %d, ожидалось 60", s.Len())
	}
	if s.Symbol != "BTCUSDT" || s.Interval != "1m" {
		t.Errorf("метаданные ряда %s/%s", s.Symbol, s.Interval)
	}
}

func TestWarmupMaskedAsNaN(t *testing.T) {
	// До накопления окна расчета индикатор равен NaN, никогда нулю
	s, err := Compute(testCandles(60), testTechnicalConfig())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	first := s.Row(0)
	if !math.IsNaN(first.RSI) {
		t.Errorf("RSI первого бара %v, ожидался NaN", first.RSI)
	}
	if !math.IsNaN(first.UpperBand) || !math.IsNaN(first.LowerBand) {
		t.Error("полосы Боллинджера первого бара должны быть NaN")
	}
	if !math.IsNaN(first.ADX) {
		t.Errorf("ADX первого бара %v, ожидался NaN", first.ADX)
	}
	if !math.IsNaN(first.MA200) {
		t.Errorf("MA первого бара %v, ожидался NaN", first.MA200)
	}
	if !math.IsNaN(first.ATRPrev) || !math.IsNaN(first.OBVPrev) {
		t.Error("сдвинутые поля первого бара должны быть NaN")
	}

	// Границы разогрева: последний замаскированный и первый рассчитанный бар
	if !math.IsNaN(s.Row(4).RSI) {
		t.Error("RSI бара 4 должен быть в разогреве")
	}
	if math.IsNaN(s.Row(5).RSI) {
		t.Error("RSI бара 5 уже должен быть рассчитан")
	}
	if !math.IsNaN(s.Row(6).MACDSignal) {
		t.Error("сигнальная линия MACD бара 6 должна быть в разогреве")
	}
	if math.IsNaN(s.Row(7).MACDSignal) {
		t.Error("сигнальная линия MACD бара 7 уже должна быть рассчитана")
	}
	if !math.IsNaN(s.Row(8).ADX) {
		t.Error("ADX бара 8 должен быть в разогреве")
	}
	if math.IsNaN(s.Row(9).ADX) {
		t.Error("ADX бара 9 уже должен быть рассчитан")
	}

	// На последнем баре рассчитано все
	last := s.Latest()
	for name, v := range map[string]float64{
		"RSI": last.RSI, "UpperBand": last.UpperBand, "LowerBand": last.LowerBand,
		"MACD": last.MACD, "MACDSignal": last.MACDSignal,
		"ADX": last.ADX, "PlusDI": last.PlusDI, "MinusDI": last.MinusDI,
		"VWAP": last.VWAP, "MFI": last.MFI,
		"ATR": last.ATR, "ATRPrev": last.ATRPrev,
		"OBV": last.OBV, "OBVPrev": last.OBVPrev, "MA200": last.MA200,
	} {
		if math.IsNaN(v) {
			t.Errorf("%s последнего бара не рассчитан", name)
		}
	}
}

func TestVWAPCumulative(t *testing.T) {
	candles := testCandles(60)
	candles[0].Close, candles[0].Volume = 10, 1
	candles[1].Close, candles[1].Volume = 20, 3

	s, err := Compute(candles, testTechnicalConfig())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	// VWAP кумулятивный: (10*1)/1 = 10, затем (10+60)/4 = 17.5
	if got := s.Row(0).VWAP; math.Abs(got-10) > 1e-9 {
		t.Errorf("VWAP первого бара %v, ожидался 10", got)
	}
	if got := s.Row(1).VWAP; math.Abs(got-17.5) > 1e-9 {
		t.Errorf("VWAP второго бара %v, ожидался 17.5", got)
	}
}

func TestPrevFieldsShiftedByOneBar(t *testing.T) {
	s, err := Compute(testCandles(60), testTechnicalConfig())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	for i := 10; i < s.Len(); i++ {
		row, prev := s.Row(i), s.Row(i-1)
		if row.ATRPrev != prev.ATR {
			t.Fatalf("бар %d: ATRPrev %v не совпадает с ATR предыдущего бара %v",
				i, row.ATRPrev, prev.ATR)
		}
		if row.OBVPrev != prev.OBV {
			t.Fatalf("бар %d: OBVPrev %v не совпадает с OBV предыдущего бара %v",
				i, row.OBVPrev, prev.OBV)
		}
	}
}

func TestLatestIsLastRow(t *testing.T) {
	s, err := Compute(testCandles(60), testTechnicalConfig())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	last := s.Row(s.Len() - 1)
	if got := s.Latest(); got.Close != last.Close || got.OBV != last.OBV {
		t.Error("Latest должен возвращать строку последнего бара")
	}
}
