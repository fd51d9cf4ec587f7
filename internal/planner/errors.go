package planner

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidAmount 表示请求数量不合法（空值或非正数）。
var ErrInvalidAmount = errors.New("planner: 请求数量必须大于0")

// InsufficientLiquidityError 表示订单簿深度不足以完全成交。
// Partial 为截至候选耗尽时算出的尽力而为计划，调用方可据此显式决定
// 是否接受部分成交，但绝不会被自动提交。
type InsufficientLiquidityError struct {
	Requested *big.Int
	Fillable  *big.Int
	Partial   Plan
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("planner: 流动性不足: 请求 %s, 可成交 %s", e.Requested, e.Fillable)
}

// Shortfall 返回无法成交的缺口数量。
func (e *InsufficientLiquidityError) Shortfall() *big.Int {
	return new(big.Int).Sub(e.Requested, e.Fillable)
}
