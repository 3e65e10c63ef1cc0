package orderbook

import (
	"fmt"
	"strconv"

	"github.com/skalibog/bstb/pkg/models"
)

// Pressure — сводка давления стакана на момент снимка
type Pressure struct {
	BidVolume float64
	AskVolume float64
	BestBid   float64
	BestAsk   float64
	Spread    float64
	// BidRatio = bid / (bid+ask); 0 при пустом стакане
	BidRatio float64
}

// Analyze считает давление по снимку стакана.
// Строковые уровни конвертируются в числа, как их отдает биржа.
func Analyze(ob *models.OrderBook) (Pressure, error) {
	var p Pressure

	for _, bid := range ob.Bids {
		price, amount, err := parseLevel(bid)
		if err != nil {
			return p, fmt.Errorf("ошибка разбора уровня бида: %w", err)
		}
		p.BidVolume += amount
		if price > p.BestBid {
			p.BestBid = price
		}
	}

	for _, ask := range ob.Asks {
		price, amount, err := parseLevel(ask)
		if err != nil {
			return p, fmt.Errorf("ошибка разбора уровня аска: %w", err)
		}
		p.AskVolume += amount
		if p.BestAsk == 0 || price < p.BestAsk {
			p.BestAsk = price
		}
	}

	if p.BestBid > 0 && p.BestAsk > 0 {
		p.Spread = p.BestAsk - p.BestBid
	}

	total := p.BidVolume + p.AskVolume
	if total > 0 {
		p.BidRatio = p.BidVolume / total
	}

	return p, nil
}

// Signal возвращает true, если доминирование бидов достигло порога
func (p Pressure) Signal(threshold float64) bool {
	return p.BidRatio >= threshold
}

func parseLevel(level models.OrderBookLevel) (float64, float64, error) {
	price, err := strconv.ParseFloat(level.Price, 64)
	if err != nil {
		return 0, 0, err
	}
	amount, err := strconv.ParseFloat(level.Amount, 64)
	if err != nil {
		return 0, 0, err
	}
	return price, amount, nil
}
