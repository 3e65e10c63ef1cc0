package indicators

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

// Row — строка ряда со значениями индикаторов на одном баре.
// Поле, для которого не накоплено окно расчета, равно NaN, никогда не нулю.
type Row struct {
	Close      float64
	UpperBand  float64
	MiddleBand float64
	LowerBand  float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	ADX        float64
	PlusDI     float64
	MinusDI    float64
	VWAP       float64
	MFI        float64
	ATR        float64
	ATRPrev    float64
	OBV        float64
	OBVPrev    float64
	MA200      float64
}

// Series — ряд баров с рассчитанными колонками индикаторов
type Series struct {
	Symbol   string
	Interval string

	closes     []float64
	upperBand  []float64
	middleBand []float64
	lowerBand  []float64
	rsi        []float64
	macd       []float64
	macdSignal []float64
	adx        []float64
	plusDI     []float64
	minusDI    []float64
	vwap       []float64
	mfi        []float64
	atr        []float64
	obv        []float64
	ma         []float64
}

// Compute рассчитывает колонки индикаторов по ряду свечей
func Compute(candles []*models.Candle, cfg config.TechnicalConfig) (*Series, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("пустой ряд свечей")
	}

	n := len(candles)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		opens[i] = c.Open
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	s := &Series{
		Symbol:   candles[0].Symbol,
		Interval: candles[0].Interval,
		closes:   closes,
	}

	macd, macdSignal, _ := talib.Macd(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	s.macd = maskWarmup(macd, cfg.MACDSlow-1)
	s.macdSignal = maskWarmup(macdSignal, cfg.MACDSlow+cfg.MACDSignal-2)

	s.adx = maskWarmup(talib.Adx(highs, lows, closes, cfg.ADXPeriod), 2*cfg.ADXPeriod-1)
	s.plusDI = maskWarmup(talib.PlusDI(highs, lows, closes, cfg.ADXPeriod), cfg.ADXPeriod)
	s.minusDI = maskWarmup(talib.MinusDI(highs, lows, closes, cfg.ADXPeriod), cfg.ADXPeriod)

	s.rsi = maskWarmup(talib.Rsi(closes, cfg.RSIPeriod), cfg.RSIPeriod)
	s.mfi = maskWarmup(talib.Mfi(highs, lows, closes, volumes, cfg.MFIPeriod), cfg.MFIPeriod)
	s.atr = maskWarmup(talib.Atr(highs, lows, closes, cfg.ATRPeriod), cfg.ATRPeriod)

	upper, middle, lower := talib.BBands(closes, cfg.BBPeriod, 2.0, 2.0, talib.SMA)
	s.upperBand = maskWarmup(upper, cfg.BBPeriod-1)
	s.middleBand = maskWarmup(middle, cfg.BBPeriod-1)
	s.lowerBand = maskWarmup(lower, cfg.BBPeriod-1)

	s.obv = talib.Obv(closes, volumes)
	s.vwap = computeVWAP(closes, volumes)
	s.ma = maskWarmup(talib.Sma(closes, cfg.MAPeriod), cfg.MAPeriod-1)

	return s, nil
}

// Len возвращает длину ряда
func (s *Series) Len() int {
	return len(s.closes)
}

// Row возвращает строку индикаторов для бара i.
// Поля со сдвигом назад (ATRPrev, OBVPrev) берутся с бара i-1.
func (s *Series) Row(i int) Row {
	row := Row{
		Close:      s.closes[i],
		UpperBand:  s.upperBand[i],
		MiddleBand: s.middleBand[i],
		LowerBand:  s.lowerBand[i],
		RSI:        s.rsi[i],
		MACD:       s.macd[i],
		MACDSignal: s.macdSignal[i],
		ADX:        s.adx[i],
		PlusDI:     s.plusDI[i],
		MinusDI:    s.minusDI[i],
		VWAP:       s.vwap[i],
		MFI:        s.mfi[i],
		ATR:        s.atr[i],
		OBV:        s.obv[i],
		MA200:      s.ma[i],
		ATRPrev:    math.NaN(),
		OBVPrev:    math.NaN(),
	}
	if i > 0 {
		row.ATRPrev = s.atr[i-1]
		row.OBVPrev = s.obv[i-1]
	}
	return row
}

// Latest возвращает строку индикаторов последнего бара
func (s *Series) Latest() Row {
	return s.Row(s.Len() - 1)
}

// computeVWAP рассчитывает кумулятивный VWAP по закрытиям и объемам.
// В talib нет VWAP, считаем так же, как исходная колонка:
// cumsum(close*volume) / cumsum(volume).
func computeVWAP(closes, volumes []float64) []float64 {
	vwap := make([]float64, len(closes))
	var cumPV, cumV float64
	for i := range closes {
		cumPV += closes[i] * volumes[i]
		cumV += volumes[i]
		if cumV == 0 {
			vwap[i] = math.NaN()
			continue
		}
		vwap[i] = cumPV / cumV
	}
	return vwap
}

// maskWarmup затирает NaN значения до накопления окна расчета.
// talib заполняет разогрев нулями, что неотличимо от реальных значений.
func maskWarmup(values []float64, lookback int) []float64 {
	if lookback < 0 {
		lookback = 0
	}
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}
