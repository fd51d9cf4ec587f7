package app

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
	"github.com/VietCT04/Decentralised-Exchange/internal/config"
	"github.com/VietCT04/Decentralised-Exchange/internal/execution"
	"github.com/VietCT04/Decentralised-Exchange/internal/funding"
	"github.com/VietCT04/Decentralised-Exchange/internal/history"
	"github.com/VietCT04/Decentralised-Exchange/internal/planner"
	"github.com/VietCT04/Decentralised-Exchange/internal/store"
)

func newTestEvents(t *testing.T) *history.Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := history.NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func countEvents(t *testing.T, events *history.Service, typ history.EventType) int {
	t.Helper()
	list, err := events.ListEvents(context.Background(), typ, 100)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	return len(list)
}

func TestWritePlanErrorLiquidityRecordsSingleQuoteEvent(t *testing.T) {
	events := newTestEvents(t)
	rec := httptest.NewRecorder()

	liqErr := &planner.InsufficientLiquidityError{
		Requested: big.NewInt(150),
		Fillable:  big.NewInt(130),
		Partial: planner.Plan{
			Pair:      book.Pair{},
			Requested: big.NewInt(150),
			TotalTake: big.NewInt(130),
			TotalPay:  big.NewInt(68),
		},
	}

	writePlanError(context.Background(), rec, "市价扫单失败", liqErr, events, zap.NewNop())

	if rec.Code != 409 {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if got := countEvents(t, events, history.EventQuote); got != 1 {
		t.Errorf("expected 1 quote event, got %d", got)
	}
	if got := countEvents(t, events, history.EventError); got != 0 {
		t.Errorf("liquidity shortfall logged %d error events, want 0", got)
	}
	if got := countEvents(t, events, ""); got != 1 {
		t.Errorf("one failure must record exactly one event, got %d", got)
	}
}

func TestWritePlanErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid amount", planner.ErrInvalidAmount, 400},
		{"insufficient funds", funding.ErrInsufficientFunds, 422},
		{"slippage", execution.ErrSlippageExceeded, 409},
		{"unknown", errors.New("boom"), 500},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := newTestEvents(t)
			rec := httptest.NewRecorder()

			writePlanError(context.Background(), rec, "报价失败", tc.err, events, zap.NewNop())

			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if got := countEvents(t, events, history.EventError); got != 1 {
				t.Errorf("expected exactly 1 error event, got %d", got)
			}
		})
	}
}
