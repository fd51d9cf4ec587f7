package gateway

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
)

type fakeOrderReader struct {
	orders  []book.Order
	lenErr  error
	readErr map[uint64]error
}

func (f *fakeOrderReader) OrdersLength(ctx context.Context) (uint64, error) {
	if f.lenErr != nil {
		return 0, f.lenErr
	}
	return uint64(len(f.orders)), nil
}

func (f *fakeOrderReader) OrderAt(ctx context.Context, id uint64) (book.Order, error) {
	if err, ok := f.readErr[id]; ok {
		return book.Order{}, err
	}
	return f.orders[id], nil
}

func fakeOrder(id uint64) book.Order {
	return book.Order{
		ID:            id,
		Owner:         common.HexToAddress("0x00000000000000000000000000000000000000ee"),
		SellToken:     common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		BuyToken:      common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		SellAmount:    big.NewInt(int64(100 + id)),
		BuyAmount:     big.NewInt(int64(50 + id)),
		RemainingSell: big.NewInt(int64(100 + id)),
		Active:        true,
	}
}

func TestSnapshotterPreservesOrdinalOrder(t *testing.T) {
	reader := &fakeOrderReader{}
	for i := uint64(0); i < 40; i++ {
		reader.orders = append(reader.orders, fakeOrder(i))
	}

	snaps := NewSnapshotter(reader, 4, nil)
	snap, err := snaps.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if len(snap.Orders) != 40 {
		t.Fatalf("expected 40 orders, got %d", len(snap.Orders))
	}
	for i, o := range snap.Orders {
		if o.ID != uint64(i) {
			t.Fatalf("index %d holds order %d: ordinal order broken", i, o.ID)
		}
		if o.SellAmount.Cmp(big.NewInt(int64(100+i))) != 0 {
			t.Errorf("order %d carries wrong amounts", i)
		}
	}
	if snap.RetrievedAt.IsZero() {
		t.Errorf("expected RetrievedAt to be set")
	}
}

func TestSnapshotterRejectsInvalidOrders(t *testing.T) {
	reader := &fakeOrderReader{}
	reader.orders = append(reader.orders, fakeOrder(0))

	zeroSell := fakeOrder(1)
	zeroSell.SellAmount = big.NewInt(0)
	zeroSell.RemainingSell = big.NewInt(0)
	reader.orders = append(reader.orders, zeroSell)

	nilRemaining := fakeOrder(2)
	nilRemaining.RemainingSell = nil
	reader.orders = append(reader.orders, nilRemaining)

	overfilled := fakeOrder(3)
	overfilled.RemainingSell = new(big.Int).Add(overfilled.SellAmount, big.NewInt(1))
	reader.orders = append(reader.orders, overfilled)

	snaps := NewSnapshotter(reader, 2, nil)
	snap, err := snaps.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if len(snap.Orders) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(snap.Orders))
	}
	for _, id := range []uint64{1, 2, 3} {
		if snap.Orders[id].Active {
			t.Errorf("order %d violates invariants but stayed active", id)
		}
	}
	if !snap.Orders[0].Active {
		t.Fatalf("valid order was deactivated")
	}

	pair := book.Pair{
		Base:  common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Quote: common.HexToAddress("0x00000000000000000000000000000000000000b2"),
	}
	asks := snap.Asks(pair)
	if len(asks) != 1 || asks[0].ID != 0 {
		t.Fatalf("expected only the valid order as ask, got %v", asks)
	}
}

func TestSnapshotterEmptyTable(t *testing.T) {
	snaps := NewSnapshotter(&fakeOrderReader{}, 4, nil)
	snap, err := snaps.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(snap.Orders) != 0 {
		t.Fatalf("expected empty snapshot, got %d orders", len(snap.Orders))
	}
}

func TestSnapshotterPropagatesErrors(t *testing.T) {
	boom := errors.New("rpc down")

	snaps := NewSnapshotter(&fakeOrderReader{lenErr: boom}, 4, nil)
	if _, err := snaps.Fetch(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected length error to propagate, got %v", err)
	}

	reader := &fakeOrderReader{readErr: map[uint64]error{2: boom}}
	for i := uint64(0); i < 5; i++ {
		reader.orders = append(reader.orders, fakeOrder(i))
	}
	snaps = NewSnapshotter(reader, 2, nil)
	if _, err := snaps.Fetch(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected read error to propagate, got %v", err)
	}
}
