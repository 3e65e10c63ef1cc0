package conditions

import (
	"math"

	"github.com/skalibog/bstb/internal/indicators"
)

// Пороговые значения предикатов. Закрытый набор, не конфигурируется:
// исторически условия были строками с этими же константами внутри.
const (
	rsiOversold     = 30.0
	rsiOverbought   = 70.0
	adxTrendUpMin   = 30.0
	adxTrendDownMin = 25.0
	mfiOversold     = 20.0
	mfiOverbought   = 80.0
)

// Kind — вид типизированного предиката
type Kind int

const (
	CloseBelowLowerBand Kind = iota
	RSIOversold
	MACDBullishCross
	ADXTrendUp
	CloseAboveVWAP
	MFIOversold
	ATRRising
	OBVRising

	CloseAboveUpperBand
	RSIOverbought
	MACDBearishCross
	ADXTrendDown
	CloseBelowVWAP
	MFIOverbought
	ATRFalling
	OBVFalling
)

// Имена предикатов, используются как ключи весов в конфигурации
var kindNames = map[Kind]string{
	CloseBelowLowerBand: "close_below_lower_band",
	RSIOversold:         "rsi_oversold",
	MACDBullishCross:    "macd_bullish_cross",
	ADXTrendUp:          "adx_trend_up",
	CloseAboveVWAP:      "close_above_vwap",
	MFIOversold:         "mfi_oversold",
	ATRRising:           "atr_rising",
	OBVRising:           "obv_rising",
	CloseAboveUpperBand: "close_above_upper_band",
	RSIOverbought:       "rsi_overbought",
	MACDBearishCross:    "macd_bearish_cross",
	ADXTrendDown:        "adx_trend_down",
	CloseBelowVWAP:      "close_below_vwap",
	MFIOverbought:       "mfi_overbought",
	ATRFalling:          "atr_falling",
	OBVFalling:          "obv_falling",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Condition — предикат с весом
type Condition struct {
	Kind   Kind
	Weight float64
}

// Result — результат вычисления предиката на строке индикаторов.
// Невычислимый предикат (NaN в операндах) не считается «не выполненным»:
// он исключается из знаменателя нормализации.
type Result struct {
	Kind      Kind
	Met       bool
	Evaluable bool
	Weight    float64
}

// Канонический порядок наборов
var buyKinds = []Kind{
	CloseBelowLowerBand, RSIOversold, MACDBullishCross, ADXTrendUp,
	CloseAboveVWAP, MFIOversold, ATRRising, OBVRising,
}

var sellKinds = []Kind{
	CloseAboveUpperBand, RSIOverbought, MACDBearishCross, ADXTrendDown,
	CloseBelowVWAP, MFIOverbought, ATRFalling, OBVFalling,
}

// Веса по умолчанию: шесть исторических условий в пропорции 2:2:2:2:1:1,
// ATR/OBV добавлены с весом 0.1, сумма набора равна 1.0
var defaultWeights = map[Kind]float64{
	CloseBelowLowerBand: 0.16,
	RSIOversold:         0.16,
	MACDBullishCross:    0.16,
	ADXTrendUp:          0.16,
	CloseAboveVWAP:      0.08,
	MFIOversold:         0.08,
	ATRRising:           0.1,
	OBVRising:           0.1,

	CloseAboveUpperBand: 0.16,
	RSIOverbought:       0.16,
	MACDBearishCross:    0.16,
	ADXTrendDown:        0.16,
	CloseBelowVWAP:      0.08,
	MFIOverbought:       0.08,
	ATRFalling:          0.1,
	OBVFalling:          0.1,
}

// BuySet собирает набор условий покупки с весами из конфигурации.
// Незаданный вес берется из набора по умолчанию.
func BuySet(weights map[string]float64) []Condition {
	return buildSet(buyKinds, weights)
}

// SellSet собирает набор условий продажи
func SellSet(weights map[string]float64) []Condition {
	return buildSet(sellKinds, weights)
}

func buildSet(kinds []Kind, weights map[string]float64) []Condition {
	set := make([]Condition, 0, len(kinds))
	for _, k := range kinds {
		w, ok := weights[k.String()]
		if !ok {
			w = defaultWeights[k]
		}
		if w < 0 {
			w = 0
		}
		set = append(set, Condition{Kind: k, Weight: w})
	}
	return set
}

// EvaluateSet вычисляет набор условий на строке индикаторов
func EvaluateSet(set []Condition, row indicators.Row) []Result {
	results := make([]Result, len(set))
	for i, c := range set {
		results[i] = c.Evaluate(row)
	}
	return results
}

// Evaluate вычисляет предикат на строке индикаторов
func (c Condition) Evaluate(row indicators.Row) Result {
	r := Result{Kind: c.Kind, Weight: c.Weight}

	switch c.Kind {
	case CloseBelowLowerBand:
		r.Evaluable = valid(row.Close, row.LowerBand)
		r.Met = r.Evaluable && row.Close < row.LowerBand
	case RSIOversold:
		r.Evaluable = valid(row.RSI)
		r.Met = r.Evaluable && row.RSI < rsiOversold
	case MACDBullishCross:
		r.Evaluable = valid(row.MACD, row.MACDSignal)
		r.Met = r.Evaluable && row.MACD > row.MACDSignal
	case ADXTrendUp:
		r.Evaluable = valid(row.ADX, row.PlusDI, row.MinusDI)
		r.Met = r.Evaluable && row.ADX > adxTrendUpMin && row.PlusDI > row.MinusDI
	case CloseAboveVWAP:
		r.Evaluable = valid(row.Close, row.VWAP)
		r.Met = r.Evaluable && row.Close > row.VWAP
	case MFIOversold:
		r.Evaluable = valid(row.MFI)
		r.Met = r.Evaluable && row.MFI < mfiOversold
	case ATRRising:
		r.Evaluable = valid(row.ATR, row.ATRPrev)
		r.Met = r.Evaluable && row.ATR > row.ATRPrev
	case OBVRising:
		r.Evaluable = valid(row.OBV, row.OBVPrev)
		r.Met = r.Evaluable && row.OBV > row.OBVPrev

	case CloseAboveUpperBand:
		r.Evaluable = valid(row.Close, row.UpperBand)
		r.Met = r.Evaluable && row.Close > row.UpperBand
	case RSIOverbought:
		r.Evaluable = valid(row.RSI)
		r.Met = r.Evaluable && row.RSI > rsiOverbought
	case MACDBearishCross:
		r.Evaluable = valid(row.MACD, row.MACDSignal)
		r.Met = r.Evaluable && row.MACD < row.MACDSignal
	case ADXTrendDown:
		r.Evaluable = valid(row.ADX, row.PlusDI, row.MinusDI)
		r.Met = r.Evaluable && row.ADX > adxTrendDownMin && row.MinusDI > row.PlusDI
	case CloseBelowVWAP:
		r.Evaluable = valid(row.Close, row.VWAP)
		r.Met = r.Evaluable && row.Close < row.VWAP
	case MFIOverbought:
		r.Evaluable = valid(row.MFI)
		r.Met = r.Evaluable && row.MFI > mfiOverbought
	case ATRFalling:
		r.Evaluable = valid(row.ATR, row.ATRPrev)
		r.Met = r.Evaluable && row.ATR < row.ATRPrev
	case OBVFalling:
		r.Evaluable = valid(row.OBV, row.OBVPrev)
		r.Met = r.Evaluable && row.OBV < row.OBVPrev
	}

	return r
}

// valid проверяет, что все операнды предиката рассчитаны
func valid(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
