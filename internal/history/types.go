package history

import (
	"math/big"
	"time"

	"github.com/VietCT04/Decentralised-Exchange/internal/execution"
	"github.com/VietCT04/Decentralised-Exchange/internal/planner"
)

// EventType 表示事件类型。
type EventType string

const (
	EventQuote     EventType = "quote"
	EventExecution EventType = "execution"
	EventOrder     EventType = "order"
	EventError     EventType = "error"
)

// Event 封装通用事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// QuotePayload 记录一次报价（纯规划，无链上动作）。
type QuotePayload struct {
	Plan      planner.Plan `json:"plan"`
	Shortfall *big.Int     `json:"shortfall,omitempty"`
}

// ExecutionPayload 记录一次市价扫单执行。
type ExecutionPayload struct {
	Result execution.Result `json:"result"`
}

// OrderPayload 记录限价挂单的创建或撤销。
type OrderPayload struct {
	Action  string `json:"action"` // create | cancel
	OrderID uint64 `json:"order_id"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
