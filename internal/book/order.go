package book

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order 表示托管合约中的一条挂单，字段与链上 getOrder 返回的元组一一对应。
type Order struct {
	ID            uint64
	Owner         common.Address
	SellToken     common.Address
	BuyToken      common.Address
	SellAmount    *big.Int
	BuyAmount     *big.Int
	RemainingSell *big.Int
	Active        bool
}

// Pair 表示交易对：吃单方用 Quote 换取 Base。
type Pair struct {
	Base  common.Address
	Quote common.Address
}

// Invert 返回方向相反的交易对。
func (p Pair) Invert() Pair {
	return Pair{Base: p.Quote, Quote: p.Base}
}

// IsAskFor 判断该挂单是否为指定交易对的卖方流动性（卖出 Base 换取 Quote）。
func (o Order) IsAskFor(p Pair) bool {
	return o.SellToken == p.Base && o.BuyToken == p.Quote
}

// Validate 校验挂单不变式：原始数量为正，剩余数量位于 [0, sellAmount]。
func (o Order) Validate() error {
	if o.SellAmount == nil || o.BuyAmount == nil || o.RemainingSell == nil {
		return fmt.Errorf("book: 挂单 %d 数量字段缺失", o.ID)
	}
	if o.SellAmount.Sign() <= 0 {
		return fmt.Errorf("book: 挂单 %d sellAmount 必须为正", o.ID)
	}
	if o.BuyAmount.Sign() <= 0 {
		return fmt.Errorf("book: 挂单 %d buyAmount 必须为正", o.ID)
	}
	if o.RemainingSell.Sign() < 0 {
		return fmt.Errorf("book: 挂单 %d remainingSell 不能为负", o.ID)
	}
	if o.RemainingSell.Cmp(o.SellAmount) > 0 {
		return fmt.Errorf("book: 挂单 %d remainingSell 超出 sellAmount", o.ID)
	}
	return nil
}

// PriceCmp 按吃单方价格优劣比较两条挂单：每单位 sellToken 要求的 buyToken 越少越优。
// 比较通过整数交叉相乘完成，禁止浮点除法，避免经济上不同的价格被误判为相等。
// 返回值 <0 表示 a 价格更优，>0 表示 b 更优，0 表示价格完全相同。
func PriceCmp(a, b Order) int {
	left := new(big.Int).Mul(a.BuyAmount, b.SellAmount)
	right := new(big.Int).Mul(b.BuyAmount, a.SellAmount)
	return left.Cmp(right)
}

// ErrOrderNotFound 表示序号超出当前订单表范围。
var ErrOrderNotFound = errors.New("book: 挂单不存在")
