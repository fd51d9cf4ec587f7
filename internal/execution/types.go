package execution

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
	"github.com/VietCT04/Decentralised-Exchange/internal/funding"
	"github.com/VietCT04/Decentralised-Exchange/internal/planner"
)

// MarketRequest 描述一次市价扫单请求。Amount 为希望买入的 Base 数量；
// LimitQuote 可选，为整单愿意支付的 Quote 总额上限（滑点上限），
// remainder_policy 为 rest 时必须提供，未成交部分将以剩余预算挂回订单簿。
type MarketRequest struct {
	Pair         book.Pair
	Amount       *big.Int
	AllowPartial bool
	LimitQuote   *big.Int
}

// LimitRequest 描述一次限价挂单请求，字段语义与合约 createOrder 一致。
type LimitRequest struct {
	SellToken  common.Address
	BuyToken   common.Address
	SellAmount *big.Int
	BuyAmount  *big.Int
}

// Result 为一次市价扫单的执行结果摘要。
type Result struct {
	Plan           planner.Plan        `json:"plan"`
	Funding        funding.Requirement `json:"funding"`
	Executed       bool                `json:"executed"`
	Shortfall      *big.Int            `json:"shortfall,omitempty"`
	RestingOrderID *uint64             `json:"resting_order_id,omitempty"`
	Notes          []string            `json:"notes,omitempty"`
	ExecutionTime  time.Time           `json:"execution_time"`
}
