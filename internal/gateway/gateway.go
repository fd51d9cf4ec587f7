package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
)

// Escrow 抽象托管合约网关。网关持有 maker 的卖方资金，是订单状态的唯一
// 权威来源：本地快照与计划都只是参考，成交与否以网关执行时校验为准。
type Escrow interface {
	// OrdersLength 返回订单表长度，序号区间为 [0, length)。
	OrdersLength(ctx context.Context) (uint64, error)
	// OrderAt 读取指定序号的挂单。
	OrderAt(ctx context.Context, id uint64) (book.Order, error)
	// CreateOrder 创建限价挂单，返回新挂单序号。
	CreateOrder(ctx context.Context, sellToken, buyToken common.Address, sellAmount, buyAmount *big.Int) (uint64, error)
	// CancelOrder 撤销自己的挂单并退还托管资金。
	CancelOrder(ctx context.Context, id uint64) error
	// FillOrder 吃掉单个挂单的指定数量，支付额由网关按相同的向上取整规则计算。
	FillOrder(ctx context.Context, id uint64, take *big.Int) error
	// FillMany 原子地执行整份扫单计划：要么所有列出的成交在 maxPay 上限内
	// 全部完成，要么整体回滚、没有任何部分副作用。
	FillMany(ctx context.Context, pair book.Pair, requested, maxPay *big.Int, ids []uint64, takes []*big.Int) error
}

// Funding 抽象吃单方支付代币的余额与授权查询及授权提升。
type Funding interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Approve(ctx context.Context, token common.Address, amount *big.Int) error
}

// RevertError 表示网关在执行时拒绝了交易（快照已过期等）。
// 调用方应重新拉取快照并重新规划，核心层绝不静默重试。
type RevertError struct {
	Op     string
	TxHash common.Hash
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("gateway: %s 交易被回滚: %s", e.Op, e.TxHash.Hex())
}
