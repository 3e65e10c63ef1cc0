package confidence

import (
	"github.com/skalibog/bstb/internal/analysis/conditions"
)

// Score сводит список результатов предикатов к уверенности в [0,1].
//
// confidence = Σ w·1[выполнено] / Σ w по вычислимым предикатам.
// Невычислимые предикаты исключаются и из числителя, и из знаменателя.
// Нулевой знаменатель означает «нет информации» и дает 0.
func Score(results []conditions.Result) float64 {
	var met, total float64
	for _, r := range results {
		if !r.Evaluable {
			continue
		}
		total += r.Weight
		if r.Met {
			met += r.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return met / total
}

// EvaluableWeight возвращает сумму весов вычислимых предикатов.
// Таймфрейм с нулевой суммой выпадает из агрегации.
func EvaluableWeight(results []conditions.Result) float64 {
	var total float64
	for _, r := range results {
		if r.Evaluable {
			total += r.Weight
		}
	}
	return total
}
