package allocation

import (
	"context"
	"fmt"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// PriceSource resolves the execution price for a symbol at rebalance
// time. Backtests serve the evaluation date's close; a live paper account
// would serve the latest quote.
type PriceSource interface {
	Price(symbol string) (float64, error)
}

// Position is a fractional holding in the paper account.
type Position struct {
	Symbol   string
	Shares   float64
	AvgPrice float64
}

// Trade records one filled paper order.
type Trade struct {
	Symbol     string
	Side       Side
	Shares     float64
	Price      float64
	Value      float64
	Commission float64
}

// PaperSink simulates rebalancing against a cash account with fractional
// shares. Slippage moves the fill price against the order; commission is
// charged on traded value. It implements contracts.AllocationSink for
// backtests; live brokers are out of scope.
type PaperSink struct {
	prices         PriceSource
	log            *logger.Logger
	commissionRate float64
	slippageRate   float64

	initial    float64
	cash       float64
	positions  map[string]*Position
	trades     []Trade
	rebalances int
}

var _ contracts.AllocationSink = (*PaperSink)(nil)

// NewPaperSink opens a paper account with the given starting capital.
func NewPaperSink(capital, commissionRate, slippageRate float64, prices PriceSource, log *logger.Logger) (*PaperSink, error) {
	if capital <= 0 {
		return nil, fmt.Errorf("starting capital must be positive, got %v", capital)
	}
	if commissionRate < 0 || slippageRate < 0 {
		return nil, fmt.Errorf("negative cost rates: commission %v, slippage %v", commissionRate, slippageRate)
	}
	if prices == nil {
		return nil, fmt.Errorf("paper sink needs a price source")
	}

	return &PaperSink{
		prices:         prices,
		log:            log.WithComponent("paper"),
		commissionRate: commissionRate,
		slippageRate:   slippageRate,
		initial:        capital,
		cash:           capital,
		positions:      make(map[string]*Position),
	}, nil
}

// Rebalance reprices the account and trades toward the evaluation's
// targets. Sells execute before buys so freed cash covers them. A price
// lookup failure aborts the rebalance with positions partially traded;
// the caller decides whether the run continues.
func (s *PaperSink) Rebalance(ctx context.Context, eval *contracts.Evaluation, liquidate bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := eval.Validate(); err != nil {
		return fmt.Errorf("rejecting rebalance: %w", err)
	}

	held := make(map[string]float64, len(s.positions))
	priceCache := make(map[string]float64)
	for symbol, pos := range s.positions {
		price, err := s.prices.Price(symbol)
		if err != nil {
			return fmt.Errorf("repricing %s: %w", symbol, err)
		}
		priceCache[symbol] = price
		held[symbol] = pos.Shares * price
	}

	equity := s.cash
	for _, value := range held {
		equity += value
	}

	for _, order := range PlanOrders(eval, held, equity) {
		if err := s.execute(order, priceCache); err != nil {
			return err
		}
	}

	s.rebalances++
	s.log.WithFields(map[string]interface{}{
		"date":      eval.Date.Format("2006-01-02"),
		"equity":    equity,
		"positions": len(s.positions),
		"liquidate": liquidate,
	}).Debug("rebalanced")

	return nil
}

func (s *PaperSink) execute(order Order, priceCache map[string]float64) error {
	price, ok := priceCache[order.Symbol]
	if !ok {
		var err error
		price, err = s.prices.Price(order.Symbol)
		if err != nil {
			return fmt.Errorf("pricing %s: %w", order.Symbol, err)
		}
	}

	fill := price
	if order.Side == Buy {
		fill = price * (1.0 + s.slippageRate)
	} else {
		fill = price * (1.0 - s.slippageRate)
	}

	commission := order.Value * s.commissionRate

	switch order.Side {
	case Buy:
		cost := order.Value + commission
		if cost > s.cash+1e-9 {
			// Costs eat into the plan: scale the buy down to the cash
			// actually available rather than failing the rebalance.
			order.Value = s.cash / (1.0 + s.commissionRate)
			commission = order.Value * s.commissionRate
			cost = order.Value + commission
			if order.Value <= 0 {
				return nil
			}
		}
		shares := order.Value / fill

		pos := s.positions[order.Symbol]
		if pos == nil {
			pos = &Position{Symbol: order.Symbol}
			s.positions[order.Symbol] = pos
		}
		totalCost := pos.AvgPrice*pos.Shares + order.Value
		pos.Shares += shares
		pos.AvgPrice = totalCost / pos.Shares

		s.cash -= cost
		s.trades = append(s.trades, Trade{
			Symbol: order.Symbol, Side: Buy,
			Shares: shares, Price: fill, Value: order.Value, Commission: commission,
		})

	case Sell:
		pos := s.positions[order.Symbol]
		if pos == nil {
			return fmt.Errorf("selling %s with no position", order.Symbol)
		}

		shares := order.Value / price
		if shares > pos.Shares {
			shares = pos.Shares
		}
		proceeds := shares * fill
		commission = proceeds * s.commissionRate

		pos.Shares -= shares
		if pos.Shares < 1e-9 {
			delete(s.positions, order.Symbol)
		}

		s.cash += proceeds - commission
		s.trades = append(s.trades, Trade{
			Symbol: order.Symbol, Side: Sell,
			Shares: shares, Price: fill, Value: proceeds, Commission: commission,
		})
	}

	return nil
}

// Equity reprices the account at current prices.
func (s *PaperSink) Equity() (float64, error) {
	equity := s.cash
	for symbol, pos := range s.positions {
		price, err := s.prices.Price(symbol)
		if err != nil {
			return 0, fmt.Errorf("repricing %s: %w", symbol, err)
		}
		equity += pos.Shares * price
	}
	return equity, nil
}

// Cash returns the uninvested balance.
func (s *PaperSink) Cash() float64 {
	return s.cash
}

// InitialCapital returns the account's starting balance.
func (s *PaperSink) InitialCapital() float64 {
	return s.initial
}

// Positions returns a copy of the current holdings.
func (s *PaperSink) Positions() []Position {
	out := make([]Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, *pos)
	}
	return out
}

// Trades returns every fill so far.
func (s *PaperSink) Trades() []Trade {
	return s.trades
}

// RebalanceCount returns how many evaluations have been applied.
func (s *PaperSink) RebalanceCount() int {
	return s.rebalances
}
