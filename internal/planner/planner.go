package planner

import (
	"math/big"
	"sort"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
)

// Fill 描述对单个挂单的消耗：take 为吃掉的 maker sellToken 数量，
// pay 为按 maker 定价折算、向上取整后需要支付的 buyToken 数量。
type Fill struct {
	OrderID uint64   `json:"order_id"`
	Take    *big.Int `json:"take"`
	Pay     *big.Int `json:"pay"`
}

// Plan 为一次市价扫单的完整执行计划，按成交顺序排列。
type Plan struct {
	Pair        book.Pair `json:"pair"`
	Requested   *big.Int  `json:"requested"`
	Fills       []Fill    `json:"fills"`
	TotalTake   *big.Int  `json:"total_take"`
	TotalPay    *big.Int  `json:"total_pay"`
	FullyFilled bool      `json:"fully_filled"`
}

// OrderIDs 返回计划中各笔成交的挂单序号，顺序与 Fills 一致。
func (p Plan) OrderIDs() []uint64 {
	ids := make([]uint64, len(p.Fills))
	for i, f := range p.Fills {
		ids[i] = f.OrderID
	}
	return ids
}

// Takes 返回计划中各笔成交的数量，顺序与 Fills 一致。
func (p Plan) Takes() []*big.Int {
	takes := make([]*big.Int, len(p.Fills))
	for i, f := range p.Fills {
		takes[i] = new(big.Int).Set(f.Take)
	}
	return takes
}

// Sweep 针对给定快照计算市价扫单计划。纯函数：不做任何 I/O，不修改入参，
// 相同输入必然产出相同计划。
//
// 候选为该交易对的卖方挂单，按交叉相乘的整数价格升序消耗，价格相同时
// 序号小者优先；每笔 take 为剩余需求与挂单剩余量的较小值，pay 始终向
// maker 方向取整（宁可多付一个最小单位，绝不少付）。
func Sweep(snap book.Snapshot, pair book.Pair, requested *big.Int) (Plan, error) {
	if requested == nil || requested.Sign() <= 0 {
		return Plan{}, ErrInvalidAmount
	}

	candidates := snap.Asks(pair)
	sort.Slice(candidates, func(i, j int) bool {
		if c := book.PriceCmp(candidates[i], candidates[j]); c != 0 {
			return c < 0
		}
		return candidates[i].ID < candidates[j].ID
	})

	plan := Plan{
		Pair:      pair,
		Requested: new(big.Int).Set(requested),
		TotalTake: new(big.Int),
		TotalPay:  new(big.Int),
	}

	remaining := new(big.Int).Set(requested)
	for _, o := range candidates {
		if remaining.Sign() == 0 {
			break
		}

		take := new(big.Int).Set(remaining)
		if take.Cmp(o.RemainingSell) > 0 {
			take.Set(o.RemainingSell)
		}
		if take.Sign() == 0 {
			continue
		}

		pay := ceilMulDiv(o.BuyAmount, take, o.SellAmount)

		plan.Fills = append(plan.Fills, Fill{OrderID: o.ID, Take: take, Pay: pay})
		plan.TotalTake.Add(plan.TotalTake, take)
		plan.TotalPay.Add(plan.TotalPay, pay)
		remaining.Sub(remaining, take)
	}

	if remaining.Sign() > 0 {
		return Plan{}, &InsufficientLiquidityError{
			Requested: new(big.Int).Set(requested),
			Fillable:  new(big.Int).Set(plan.TotalTake),
			Partial:   plan,
		}
	}

	plan.FullyFilled = true
	return plan, nil
}

// ceilMulDiv 计算 ceil(n*m/d)，d 必须为正。
func ceilMulDiv(n, m, d *big.Int) *big.Int {
	num := new(big.Int).Mul(n, m)
	num.Add(num, new(big.Int).Sub(d, big.NewInt(1)))
	return num.Div(num, d)
}
