package book

import (
	"time"
)

// Snapshot 为订单表的一次线性读取结果，按创建序号升序排列。
// 快照相对链上状态立即过期，读取方只能将其视为参考，执行时以托管合约为准。
type Snapshot struct {
	Orders      []Order
	RetrievedAt time.Time
}

// OrderByID 在快照内按序号查找挂单。
func (s Snapshot) OrderByID(id uint64) (Order, bool) {
	// 序号即数组下标，订单表只追加不删除。
	if id < uint64(len(s.Orders)) && s.Orders[id].ID == id {
		return s.Orders[id], true
	}
	for _, o := range s.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// Asks 返回指定交易对的可成交卖方挂单子序列：active、remainingSell > 0、
// 方向匹配，且保持原始序号顺序（价格相同时按先来先得裁决）。
func (s Snapshot) Asks(p Pair) []Order {
	var out []Order
	for _, o := range s.Orders {
		if !o.Active || o.RemainingSell == nil || o.RemainingSell.Sign() <= 0 {
			continue
		}
		if !o.IsAskFor(p) {
			continue
		}
		out = append(out, o)
	}
	return out
}
