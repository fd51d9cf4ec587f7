package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
	"github.com/VietCT04/Decentralised-Exchange/internal/execution"
	"github.com/VietCT04/Decentralised-Exchange/internal/funding"
	"github.com/VietCT04/Decentralised-Exchange/internal/gateway"
	"github.com/VietCT04/Decentralised-Exchange/internal/history"
	"github.com/VietCT04/Decentralised-Exchange/internal/planner"
)

// 所有数量字段在 HTTP 层都是十进制整数字符串（按代币 decimals 缩放后的
// 定点值），服务端不做任何人类可读格式化。

type orderView struct {
	ID            uint64 `json:"id"`
	Owner         string `json:"owner"`
	SellToken     string `json:"sell_token"`
	BuyToken      string `json:"buy_token"`
	SellAmount    string `json:"sell_amount"`
	BuyAmount     string `json:"buy_amount"`
	RemainingSell string `json:"remaining_sell"`
}

type fillView struct {
	OrderID uint64 `json:"order_id"`
	Take    string `json:"take"`
	Pay     string `json:"pay"`
}

type planView struct {
	Base        string     `json:"base"`
	Quote       string     `json:"quote"`
	Requested   string     `json:"requested"`
	Fills       []fillView `json:"fills"`
	TotalTake   string     `json:"total_take"`
	TotalPay    string     `json:"total_pay"`
	FullyFilled bool       `json:"fully_filled"`
}

type marketRequestBody struct {
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	Amount       string `json:"amount"`
	Side         string `json:"side"` // buy | sell，默认 buy
	AllowPartial bool   `json:"allow_partial"`
	LimitQuote   string `json:"limit_quote,omitempty"`
}

type limitRequestBody struct {
	SellToken  string `json:"sell_token"`
	BuyToken   string `json:"buy_token"`
	SellAmount string `json:"sell_amount"`
	BuyAmount  string `json:"buy_amount"`
}

type cancelRequestBody struct {
	ID uint64 `json:"id"`
}

func startServer(ctx context.Context, executor *execution.Executor, events *history.Service, port int, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		pair, err := pairFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		asks, err := executor.Book(r.Context(), pair)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		views := make([]orderView, 0, len(asks))
		for _, o := range asks {
			views = append(views, newOrderView(o))
		}
		writeJSON(w, views, logger)
	})

	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		pair, err := pairFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		amount, err := parseAmount(r.URL.Query().Get("amount"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		plan, err := executor.Quote(r.Context(), pair, amount)
		if err != nil {
			writePlanError(r.Context(), w, "报价失败", err, events, logger)
			return
		}

		events.RecordQuote(r.Context(), plan, nil)
		writeJSON(w, newPlanView(plan), logger)
	})

	mux.HandleFunc("/market", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body marketRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("解析请求失败: %v", err), http.StatusBadRequest)
			return
		}

		req, err := marketRequestFromBody(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := executor.ExecuteMarket(r.Context(), req)
		if err != nil {
			writePlanError(r.Context(), w, "市价扫单失败", err, events, logger)
			return
		}

		events.RecordExecution(r.Context(), result)
		writeJSON(w, result, logger)
	})

	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body limitRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("解析请求失败: %v", err), http.StatusBadRequest)
			return
		}

		req, err := limitRequestFromBody(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		id, err := executor.PlaceLimit(r.Context(), req)
		if err != nil {
			writePlanError(r.Context(), w, "限价挂单失败", err, events, logger)
			return
		}

		events.RecordOrder(r.Context(), "create", id)
		writeJSON(w, map[string]uint64{"id": id}, logger)
	})

	mux.HandleFunc("/orders/cancel", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body cancelRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("解析请求失败: %v", err), http.StatusBadRequest)
			return
		}

		if err := executor.Cancel(r.Context(), body.ID); err != nil {
			writePlanError(r.Context(), w, "撤单失败", err, events, logger)
			return
		}

		events.RecordOrder(r.Context(), "cancel", body.ID)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > 1000 {
					v = 1000
				}
				limit = v
			}
		}

		eventType := history.EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = history.EventType(strings.ToLower(typ))
		}

		list, err := events.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, list, logger)
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭 HTTP 服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务异常退出", zap.Error(err))
		}
	}()

	return nil
}

// writePlanError 将核心错误分类映射为 HTTP 状态码：参数类 400、流动性 409、
// 资金 422、网关回滚 502，其余 500。事件记录在此统一完成，每次失败只记一条：
// 流动性不足记部分报价，其余按 op 记异常。
func writePlanError(ctx context.Context, w http.ResponseWriter, op string, err error, events *history.Service, logger *zap.Logger) {
	var liqErr *planner.InsufficientLiquidityError
	if errors.As(err, &liqErr) {
		events.RecordQuote(ctx, liqErr.Partial, liqErr.Shortfall())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		payload := map[string]interface{}{
			"error":        err.Error(),
			"requested":    liqErr.Requested.String(),
			"fillable":     liqErr.Fillable.String(),
			"shortfall":    liqErr.Shortfall().String(),
			"partial_plan": newPlanView(liqErr.Partial),
		}
		if encodeErr := json.NewEncoder(w).Encode(payload); encodeErr != nil {
			logger.Warn("写入响应失败", zap.Error(encodeErr))
		}
		return
	}

	events.RecordError(ctx, op, err)
	switch {
	case errors.Is(err, planner.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, funding.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, execution.ErrSlippageExceeded):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		var revertErr *gateway.RevertError
		if errors.As(err, &revertErr) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("写入响应失败", zap.Error(err))
	}
}

func pairFromQuery(r *http.Request) (book.Pair, error) {
	base, err := parseAddress(r.URL.Query().Get("base"), "base")
	if err != nil {
		return book.Pair{}, err
	}
	quote, err := parseAddress(r.URL.Query().Get("quote"), "quote")
	if err != nil {
		return book.Pair{}, err
	}
	return book.Pair{Base: base, Quote: quote}, nil
}

func marketRequestFromBody(body marketRequestBody) (execution.MarketRequest, error) {
	base, err := parseAddress(body.Base, "base")
	if err != nil {
		return execution.MarketRequest{}, err
	}
	quote, err := parseAddress(body.Quote, "quote")
	if err != nil {
		return execution.MarketRequest{}, err
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		return execution.MarketRequest{}, err
	}

	pair := book.Pair{Base: base, Quote: quote}
	// 卖出 Base 等价于买入 Quote：共用同一条扫单路径。
	if strings.EqualFold(body.Side, "sell") {
		pair = pair.Invert()
	}

	req := execution.MarketRequest{
		Pair:         pair,
		Amount:       amount,
		AllowPartial: body.AllowPartial,
	}
	if body.LimitQuote != "" {
		limit, err := parseAmount(body.LimitQuote)
		if err != nil {
			return execution.MarketRequest{}, fmt.Errorf("limit_quote 不合法: %w", err)
		}
		req.LimitQuote = limit
	}
	return req, nil
}

func limitRequestFromBody(body limitRequestBody) (execution.LimitRequest, error) {
	sellToken, err := parseAddress(body.SellToken, "sell_token")
	if err != nil {
		return execution.LimitRequest{}, err
	}
	buyToken, err := parseAddress(body.BuyToken, "buy_token")
	if err != nil {
		return execution.LimitRequest{}, err
	}
	sellAmount, err := parseAmount(body.SellAmount)
	if err != nil {
		return execution.LimitRequest{}, fmt.Errorf("sell_amount 不合法: %w", err)
	}
	buyAmount, err := parseAmount(body.BuyAmount)
	if err != nil {
		return execution.LimitRequest{}, fmt.Errorf("buy_amount 不合法: %w", err)
	}
	return execution.LimitRequest{
		SellToken:  sellToken,
		BuyToken:   buyToken,
		SellAmount: sellAmount,
		BuyAmount:  buyAmount,
	}, nil
}

func parseAddress(raw, field string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s 不是合法地址: %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("amount 不能为空")
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("amount 不是十进制整数: %q", raw)
	}
	return value, nil
}

func newOrderView(o book.Order) orderView {
	return orderView{
		ID:            o.ID,
		Owner:         o.Owner.Hex(),
		SellToken:     o.SellToken.Hex(),
		BuyToken:      o.BuyToken.Hex(),
		SellAmount:    o.SellAmount.String(),
		BuyAmount:     o.BuyAmount.String(),
		RemainingSell: o.RemainingSell.String(),
	}
}

func newPlanView(p planner.Plan) planView {
	fills := make([]fillView, 0, len(p.Fills))
	for _, f := range p.Fills {
		fills = append(fills, fillView{
			OrderID: f.OrderID,
			Take:    f.Take.String(),
			Pay:     f.Pay.String(),
		})
	}
	view := planView{
		Base:        p.Pair.Base.Hex(),
		Quote:       p.Pair.Quote.Hex(),
		Fills:       fills,
		FullyFilled: p.FullyFilled,
	}
	if p.Requested != nil {
		view.Requested = p.Requested.String()
	}
	if p.TotalTake != nil {
		view.TotalTake = p.TotalTake.String()
	}
	if p.TotalPay != nil {
		view.TotalPay = p.TotalPay.String()
	}
	return view
}
