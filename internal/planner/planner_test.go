package planner

import (
	"errors"
	"math/big"
	"math/rand"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
)

var (
	tokenBase  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenQuote = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

var testPair = book.Pair{Base: tokenBase, Quote: tokenQuote}

func ask(id uint64, sell, buy, remaining int64) book.Order {
	return book.Order{
		ID:            id,
		SellToken:     tokenBase,
		BuyToken:      tokenQuote,
		SellAmount:    big.NewInt(sell),
		BuyAmount:     big.NewInt(buy),
		RemainingSell: big.NewInt(remaining),
		Active:        true,
	}
}

func snapOf(orders ...book.Order) book.Snapshot {
	return book.Snapshot{Orders: orders}
}

func checkFill(t *testing.T, f Fill, id uint64, take, pay int64) {
	t.Helper()
	if f.OrderID != id {
		t.Errorf("fill order id: got %d want %d", f.OrderID, id)
	}
	if f.Take.Cmp(big.NewInt(take)) != 0 {
		t.Errorf("fill take: got %s want %d", f.Take, take)
	}
	if f.Pay.Cmp(big.NewInt(pay)) != 0 {
		t.Errorf("fill pay: got %s want %d", f.Pay, pay)
	}
}

func TestSweepSingleOrderPartialConsumption(t *testing.T) {
	snap := snapOf(ask(0, 100, 50, 100))

	plan, err := Sweep(snap, testPair, big.NewInt(40))
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if !plan.FullyFilled {
		t.Fatalf("expected fully filled plan")
	}
	if len(plan.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(plan.Fills))
	}
	checkFill(t, plan.Fills[0], 0, 40, 20)
	if plan.TotalTake.Cmp(big.NewInt(40)) != 0 || plan.TotalPay.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("unexpected totals: take=%s pay=%s", plan.TotalTake, plan.TotalPay)
	}
}

func TestSweepPicksBestPriceFirst(t *testing.T) {
	snap := snapOf(
		ask(0, 100, 60, 30),  // 0.6
		ask(1, 100, 50, 100), // 0.5，更优
	)

	plan, err := Sweep(snap, testPair, big.NewInt(60))
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if len(plan.Fills) != 1 {
		t.Fatalf("expected single fill from the better-priced order, got %d", len(plan.Fills))
	}
	checkFill(t, plan.Fills[0], 1, 60, 30)
}

func TestSweepSpillsToWorsePriceAndReportsShortfall(t *testing.T) {
	snap := snapOf(
		ask(0, 100, 60, 30),
		ask(1, 100, 50, 100),
	)

	_, err := Sweep(snap, testPair, big.NewInt(150))
	var liqErr *InsufficientLiquidityError
	if !errors.As(err, &liqErr) {
		t.Fatalf("expected InsufficientLiquidityError, got %v", err)
	}

	if liqErr.Requested.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("requested: got %s want 150", liqErr.Requested)
	}
	if liqErr.Fillable.Cmp(big.NewInt(130)) != 0 {
		t.Errorf("fillable: got %s want 130", liqErr.Fillable)
	}
	if liqErr.Shortfall().Cmp(big.NewInt(20)) != 0 {
		t.Errorf("shortfall: got %s want 20", liqErr.Shortfall())
	}

	partial := liqErr.Partial
	if len(partial.Fills) != 2 {
		t.Fatalf("expected 2 fills in partial plan, got %d", len(partial.Fills))
	}
	checkFill(t, partial.Fills[0], 1, 100, 50)
	checkFill(t, partial.Fills[1], 0, 30, 18)
	if partial.FullyFilled {
		t.Errorf("partial plan must not claim full fill")
	}
}

func TestSweepRejectsNonPositiveAmount(t *testing.T) {
	snap := snapOf(ask(0, 100, 50, 100))

	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		if _, err := Sweep(snap, testPair, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestSweepEmptyBook(t *testing.T) {
	_, err := Sweep(snapOf(), testPair, big.NewInt(10))
	var liqErr *InsufficientLiquidityError
	if !errors.As(err, &liqErr) {
		t.Fatalf("expected InsufficientLiquidityError, got %v", err)
	}
	if liqErr.Fillable.Sign() != 0 {
		t.Errorf("fillable: got %s want 0", liqErr.Fillable)
	}
	if len(liqErr.Partial.Fills) != 0 {
		t.Errorf("expected empty partial plan, got %d fills", len(liqErr.Partial.Fills))
	}
}

func TestSweepEqualPriceBreaksTiesByID(t *testing.T) {
	snap := snapOf(
		ask(0, 200, 100, 200), // 0.5
		ask(1, 100, 50, 100),  // 0.5，序号更大
	)

	plan, err := Sweep(snap, testPair, big.NewInt(250))
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if len(plan.Fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(plan.Fills))
	}
	checkFill(t, plan.Fills[0], 0, 200, 100)
	checkFill(t, plan.Fills[1], 1, 50, 25)
}

// 价格优先律：更优价位有剩余时，必须被吃完或足以满足需求，劣价才会出现在计划里。
func TestSweepPricePriorityLaw(t *testing.T) {
	snap := snapOf(
		ask(0, 100, 90, 100),
		ask(1, 100, 30, 40),
		ask(2, 100, 60, 80),
	)

	plan, err := Sweep(snap, testPair, big.NewInt(200))
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}

	wantOrder := []uint64{1, 2, 0}
	for i, f := range plan.Fills {
		if f.OrderID != wantOrder[i] {
			t.Fatalf("fill %d: got order %d want %d", i, f.OrderID, wantOrder[i])
		}
	}
	// 前两档必须被吃干净后才轮到最贵的一档。
	if plan.Fills[0].Take.Cmp(big.NewInt(40)) != 0 || plan.Fills[1].Take.Cmp(big.NewInt(80)) != 0 {
		t.Errorf("better-priced orders must be fully consumed first: %v", plan.Fills)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	snap := snapOf(
		ask(0, 100, 60, 30),
		ask(1, 100, 50, 100),
		ask(2, 300, 151, 250),
	)

	first, err := Sweep(snap, testPair, big.NewInt(120))
	if err != nil {
		t.Fatalf("first Sweep returned error: %v", err)
	}
	second, err := Sweep(snap, testPair, big.NewInt(120))
	if err != nil {
		t.Fatalf("second Sweep returned error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("plans differ across identical inputs:\n%+v\n%+v", first, second)
	}
}

func TestSweepDoesNotMutateSnapshot(t *testing.T) {
	o := ask(0, 100, 50, 100)
	snap := snapOf(o)

	if _, err := Sweep(snap, testPair, big.NewInt(40)); err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}

	if snap.Orders[0].RemainingSell.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("snapshot remainingSell mutated: %s", snap.Orders[0].RemainingSell)
	}
	if snap.Orders[0].SellAmount.Cmp(big.NewInt(100)) != 0 || snap.Orders[0].BuyAmount.Cmp(big.NewInt(50)) != 0 {
		t.Errorf("snapshot amounts mutated")
	}
}

// 取整律：pay*sell >= buy*take 且 (pay-1)*sell < buy*take，随机整数三元组验证。
func TestCeilMulDivRoundingLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		buy := big.NewInt(rng.Int63n(1_000_000) + 1)
		sell := big.NewInt(rng.Int63n(1_000_000) + 1)
		take := big.NewInt(rng.Int63n(1_000_000) + 1)

		pay := ceilMulDiv(buy, take, sell)

		lhs := new(big.Int).Mul(pay, sell)
		rhs := new(big.Int).Mul(buy, take)
		if lhs.Cmp(rhs) < 0 {
			t.Fatalf("maker underpaid: pay=%s buy=%s take=%s sell=%s", pay, buy, take, sell)
		}

		lower := new(big.Int).Sub(pay, big.NewInt(1))
		lower.Mul(lower, sell)
		if lower.Cmp(rhs) >= 0 {
			t.Fatalf("pay not minimal: pay=%s buy=%s take=%s sell=%s", pay, buy, take, sell)
		}
	}
}

// 汇总律：sum(take) <= requested，当且仅当无流动性错误时取等。
func TestSweepTakeBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		n := rng.Intn(6)
		orders := make([]book.Order, 0, n)
		for j := 0; j < n; j++ {
			orders = append(orders, ask(
				uint64(j),
				rng.Int63n(1000)+1,
				rng.Int63n(1000)+1,
				rng.Int63n(500),
			))
		}
		// remainingSell 可能超过 sellAmount 的生成修正
		for j := range orders {
			if orders[j].RemainingSell.Cmp(orders[j].SellAmount) > 0 {
				orders[j].RemainingSell.Set(orders[j].SellAmount)
			}
		}

		requested := big.NewInt(rng.Int63n(2000) + 1)
		plan, err := Sweep(snapOf(orders...), testPair, requested)

		var liqErr *InsufficientLiquidityError
		switch {
		case err == nil:
			if plan.TotalTake.Cmp(requested) != 0 {
				t.Fatalf("full fill must take exactly requested: take=%s requested=%s", plan.TotalTake, requested)
			}
			for _, f := range plan.Fills {
				o := orders[f.OrderID]
				if f.Take.Cmp(o.RemainingSell) > 0 {
					t.Fatalf("take exceeds snapshot remaining: %s > %s", f.Take, o.RemainingSell)
				}
			}
		case errors.As(err, &liqErr):
			if liqErr.Fillable.Cmp(requested) >= 0 {
				t.Fatalf("shortfall reported but fillable >= requested")
			}
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
}
