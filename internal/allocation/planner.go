package allocation

import (
	"sort"

	"github.com/sonatalabs/sonata/internal/contracts"
)

// Side is an order direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Order is one value-denominated rebalancing trade. Value is always
// positive; Side carries the direction.
type Order struct {
	Symbol string
	Side   Side
	Value  float64
}

// PlanOrders diffs target weights against current position values and
// produces the trades that close the gap. Positions absent from the
// target list are sold in full. Sells come first so their proceeds fund
// the buys; within each side orders are sorted by symbol for determinism.
func PlanOrders(eval *contracts.Evaluation, held map[string]float64, equity float64) []Order {
	targets := make(map[string]float64, len(eval.Targets))
	for _, tw := range eval.Targets {
		targets[tw.Symbol] = tw.Weight * equity
	}

	var sells, buys []Order
	for symbol, value := range held {
		target := targets[symbol]
		if diff := target - value; diff < 0 {
			sells = append(sells, Order{Symbol: symbol, Side: Sell, Value: -diff})
		}
	}
	for symbol, target := range targets {
		if diff := target - held[symbol]; diff > 0 {
			buys = append(buys, Order{Symbol: symbol, Side: Buy, Value: diff})
		}
	}

	sort.Slice(sells, func(i, j int) bool { return sells[i].Symbol < sells[j].Symbol })
	sort.Slice(buys, func(i, j int) bool { return buys[i].Symbol < buys[j].Symbol })
	return append(sells, buys...)
}
