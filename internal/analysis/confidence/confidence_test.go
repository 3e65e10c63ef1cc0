package confidence

import (
	"math"
	"testing"

	"github.com/skalibog/bstb/internal/analysis/conditions"
	"github.com/skalibog/bstb/internal/indicators"
)

func fullBullishRow() indicators.Row {
	return indicators.Row{
		Close:      95,
		UpperBand:  110,
		MiddleBand: 102,
		LowerBand:  100,
		RSI:        25,
		MACD:       1.5,
		MACDSignal: 1.0,
		ADX:        35,
		PlusDI:     30,
		MinusDI:    10,
		VWAP:       90,
		MFI:        15,
		ATR:        2.0,
		ATRPrev:    1.5,
		OBV:        1000,
		OBVPrev:    900,
		MA200:      100,
	}
}

func TestScoreAllConditionsMet(t *testing.T) {
	results := conditions.EvaluateSet(conditions.BuySet(nil), fullBullishRow())
	if got := Score(results); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("все условия выполнены, уверенность %v, ожидалась 1.0", got)
	}
}

func TestScoreNoConditionsMet(t *testing.T) {
	results := conditions.EvaluateSet(conditions.SellSet(nil), fullBullishRow())
	if got := Score(results); got != 0 {
		t.Errorf("ни одно условие не выполнено, уверенность %v, ожидался 0", got)
	}
}

func TestScoreExcludesUnavailableFromBothSides(t *testing.T) {
	// ADX невычислим, RSI вычислим но не выполнен.
	// Знаменатель: 1.0 - 0.16 (ADX выпал) = 0.84.
	// Числитель: все выполненные, кроме RSI и ADX = 0.68.
	row := fullBullishRow()
	row.ADX = math.NaN()
	row.RSI = 50

	results := conditions.EvaluateSet(conditions.BuySet(nil), row)

	want := 0.68 / 0.84
	if got := Score(results); math.Abs(got-want) > 1e-9 {
		t.Errorf("уверенность %v, ожидалась %v", got, want)
	}
	if got := EvaluableWeight(results); math.Abs(got-0.84) > 1e-9 {
		t.Errorf("вычислимый вес %v, ожидался 0.84", got)
	}
}

func TestScoreZeroDenominator(t *testing.T) {
	// Пустой список и список без вычислимых предикатов дают 0, не NaN
	if got := Score(nil); got != 0 {
		t.Errorf("уверенность пустого списка %v, ожидался 0", got)
	}

	nan := math.NaN()
	row := indicators.Row{
		Close: nan, UpperBand: nan, MiddleBand: nan, LowerBand: nan,
		RSI: nan, MACD: nan, MACDSignal: nan,
		ADX: nan, PlusDI: nan, MinusDI: nan,
		VWAP: nan, MFI: nan,
		ATR: nan, ATRPrev: nan, OBV: nan, OBVPrev: nan, MA200: nan,
	}
	results := conditions.EvaluateSet(conditions.BuySet(nil), row)
	got := Score(results)
	if got != 0 {
		t.Errorf("уверенность без данных %v, ожидался 0", got)
	}
	if EvaluableWeight(results) != 0 {
		t.Error("вычислимый вес без данных должен быть 0")
	}
}

func TestScoreBounds(t *testing.T) {
	cases := []struct {
		name    string
		results []conditions.Result
	}{
		{"смешанный", []conditions.Result{
			{Met: true, Evaluable: true, Weight: 0.3},
			{Met: false, Evaluable: true, Weight: 0.5},
			{Met: true, Evaluable: false, Weight: 0.2},
		}},
		{"один выполнен", []conditions.Result{
			{Met: true, Evaluable: true, Weight: 0.01},
			{Met: false, Evaluable: true, Weight: 0.99},
		}},
		{"нулевые веса", []conditions.Result{
			{Met: true, Evaluable: true, Weight: 0},
		}},
	}

	for _, tc := range cases {
		got := Score(tc.results)
		if got < 0 || got > 1 {
			t.Errorf("%s: уверенность %v вне [0,1]", tc.name, got)
		}
		if math.IsNaN(got) {
			t.Errorf("%s: уверенность NaN", tc.name)
		}
	}
}

func TestScoreMonotonic(t *testing.T) {
	// Выполнение дополнительного предиката не уменьшает уверенность
	base := []conditions.Result{
		{Met: true, Evaluable: true, Weight: 0.4},
		{Met: false, Evaluable: true, Weight: 0.3},
		{Met: false, Evaluable: true, Weight: 0.3},
	}
	more := []conditions.Result{
		{Met: true, Evaluable: true, Weight: 0.4},
		{Met: true, Evaluable: true, Weight: 0.3},
		{Met: false, Evaluable: true, Weight: 0.3},
	}
	if Score(more) < Score(base) {
		t.Errorf("уверенность уменьшилась при выполнении дополнительного предиката: %v < %v",
			Score(more), Score(base))
	}
}
