package allocation

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/pkg/logger"
)

type fixedPrices map[string]float64

func (p fixedPrices) Price(symbol string) (float64, error) {
	v, ok := p[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return v, nil
}

func evaluation(targets ...contracts.TargetWeight) *contracts.Evaluation {
	return &contracts.Evaluation{
		Date:    time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		Targets: targets,
	}
}

func TestPlanOrdersSellsBeforeBuys(t *testing.T) {
	eval := evaluation(
		contracts.TargetWeight{Symbol: "VTI", Weight: 0.6},
		contracts.TargetWeight{Symbol: "BND", Weight: 0.4},
	)
	held := map[string]float64{"QQQ": 500, "VTI": 300}

	orders := PlanOrders(eval, held, 1000)

	if len(orders) != 3 {
		t.Fatalf("orders = %v, want 3", orders)
	}
	// QQQ is absent from the targets and sold in full, before any buy.
	if orders[0].Symbol != "QQQ" || orders[0].Side != Sell || orders[0].Value != 500 {
		t.Errorf("first order = %v, want sell QQQ 500", orders[0])
	}
	if orders[1].Symbol != "BND" || orders[1].Side != Buy || orders[1].Value != 400 {
		t.Errorf("second order = %v, want buy BND 400", orders[1])
	}
	if orders[2].Symbol != "VTI" || orders[2].Side != Buy || orders[2].Value != 300 {
		t.Errorf("third order = %v, want buy VTI 300", orders[2])
	}
}

func TestPlanOrdersNoChurnWhenOnTarget(t *testing.T) {
	eval := evaluation(contracts.TargetWeight{Symbol: "VTI", Weight: 0.5})
	held := map[string]float64{"VTI": 500}

	if orders := PlanOrders(eval, held, 1000); len(orders) != 0 {
		t.Errorf("on-target portfolio planned %v", orders)
	}
}

func TestRebalanceFromCash(t *testing.T) {
	prices := fixedPrices{"VTI": 200, "BND": 80}
	sink, err := NewPaperSink(10000, 0, 0, prices, logger.NewNop())
	if err != nil {
		t.Fatalf("NewPaperSink: %v", err)
	}

	eval := evaluation(
		contracts.TargetWeight{Symbol: "VTI", Weight: 0.6},
		contracts.TargetWeight{Symbol: "BND", Weight: 0.4},
	)
	if err := sink.Rebalance(context.Background(), eval, false); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}

	equity, err := sink.Equity()
	if err != nil {
		t.Fatalf("Equity: %v", err)
	}
	if math.Abs(equity-10000) > 1e-6 {
		t.Errorf("equity = %v, want 10000 with zero costs", equity)
	}
	if math.Abs(sink.Cash()) > 1e-6 {
		t.Errorf("cash = %v, want fully invested", sink.Cash())
	}

	for _, pos := range sink.Positions() {
		value := pos.Shares * prices[pos.Symbol]
		switch pos.Symbol {
		case "VTI":
			if math.Abs(value-6000) > 1e-6 {
				t.Errorf("VTI value = %v, want 6000", value)
			}
		case "BND":
			if math.Abs(value-4000) > 1e-6 {
				t.Errorf("BND value = %v, want 4000", value)
			}
		default:
			t.Errorf("unexpected position %v", pos)
		}
	}
}

func TestRebalanceLiquidatesDroppedPosition(t *testing.T) {
	prices := fixedPrices{"VTI": 100, "QQQ": 100}
	sink, err := NewPaperSink(1000, 0, 0, prices, logger.NewNop())
	if err != nil {
		t.Fatalf("NewPaperSink: %v", err)
	}

	ctx := context.Background()
	if err := sink.Rebalance(ctx, evaluation(contracts.TargetWeight{Symbol: "QQQ", Weight: 1.0}), false); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	if err := sink.Rebalance(ctx, evaluation(contracts.TargetWeight{Symbol: "VTI", Weight: 1.0}), true); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}

	positions := sink.Positions()
	if len(positions) != 1 || positions[0].Symbol != "VTI" {
		t.Fatalf("positions = %v, want only VTI", positions)
	}
	if sink.RebalanceCount() != 2 {
		t.Errorf("rebalances = %d, want 2", sink.RebalanceCount())
	}
}

func TestCommissionReducesEquity(t *testing.T) {
	prices := fixedPrices{"VTI": 100}
	sink, err := NewPaperSink(10000, 0.001, 0, prices, logger.NewNop())
	if err != nil {
		t.Fatalf("NewPaperSink: %v", err)
	}

	if err := sink.Rebalance(context.Background(), evaluation(contracts.TargetWeight{Symbol: "VTI", Weight: 1.0}), false); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}

	equity, err := sink.Equity()
	if err != nil {
		t.Fatalf("Equity: %v", err)
	}
	if equity >= 10000 {
		t.Errorf("equity = %v, commission should cost something", equity)
	}
	if sink.Cash() < -1e-9 {
		t.Errorf("cash went negative: %v", sink.Cash())
	}

	trades := sink.Trades()
	if len(trades) != 1 || trades[0].Commission <= 0 {
		t.Errorf("trades = %v, want one commissioned buy", trades)
	}
}

func TestSlippageMovesFillAgainstOrder(t *testing.T) {
	prices := fixedPrices{"VTI": 100}
	sink, err := NewPaperSink(10000, 0, 0.01, prices, logger.NewNop())
	if err != nil {
		t.Fatalf("NewPaperSink: %v", err)
	}

	if err := sink.Rebalance(context.Background(), evaluation(contracts.TargetWeight{Symbol: "VTI", Weight: 1.0}), false); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}

	trades := sink.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades = %v", trades)
	}
	if trades[0].Price != 101 {
		t.Errorf("buy fill = %v, want 101 with 1%% slippage", trades[0].Price)
	}
}

func TestRebalanceRejectsInvalidEvaluation(t *testing.T) {
	sink, err := NewPaperSink(1000, 0, 0, fixedPrices{}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewPaperSink: %v", err)
	}

	bad := evaluation(contracts.TargetWeight{Symbol: "VTI", Weight: -0.5})
	if err := sink.Rebalance(context.Background(), bad, false); err == nil {
		t.Error("negative target weight should be rejected")
	}
}

func TestNewPaperSinkValidation(t *testing.T) {
	log := logger.NewNop()

	if _, err := NewPaperSink(0, 0, 0, fixedPrices{}, log); err == nil {
		t.Error("zero capital should fail")
	}
	if _, err := NewPaperSink(1000, -0.1, 0, fixedPrices{}, log); err == nil {
		t.Error("negative commission should fail")
	}
	if _, err := NewPaperSink(1000, 0, 0, nil, log); err == nil {
		t.Error("nil price source should fail")
	}
}
