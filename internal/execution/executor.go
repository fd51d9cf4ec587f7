package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
	"github.com/VietCT04/Decentralised-Exchange/internal/config"
	"github.com/VietCT04/Decentralised-Exchange/internal/funding"
	"github.com/VietCT04/Decentralised-Exchange/internal/gateway"
	"github.com/VietCT04/Decentralised-Exchange/internal/planner"
)

// ErrSlippageExceeded 表示计划总支付额超出请求声明的滑点上限。
var ErrSlippageExceeded = errors.New("execution: 计划支付额超出滑点上限")

// escrowClient 为执行器依赖的网关能力集合。
type escrowClient interface {
	gateway.Escrow
	gateway.Funding
}

// snapshotFetcher 抽象快照读取，便于测试替换。
type snapshotFetcher interface {
	Fetch(ctx context.Context) (book.Snapshot, error)
}

// Executor 将扫单计划转化为具体的网关提交动作。
// 执行顺序固定：快照 → 规划 → 资金校验 → 授权 → 成交 → 余量处置。
// 规划是纯计算，网关执行时仍会按当前状态逐单校验，回滚原样上抛。
type Executor struct {
	client escrowClient
	snaps  snapshotFetcher
	taker  common.Address
	cfg    config.ExecutionConfig
	logger *zap.Logger
}

// NewExecutor 创建执行器。
func NewExecutor(client escrowClient, snaps snapshotFetcher, taker common.Address, cfg config.ExecutionConfig, logger *zap.Logger) (*Executor, error) {
	if client == nil {
		return nil, errors.New("execution: 网关客户端不能为空")
	}
	if snaps == nil {
		return nil, errors.New("execution: 快照读取器不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client: client,
		snaps:  snaps,
		taker:  taker,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Quote 拉取最新快照并计算扫单计划，不产生任何链上动作。
// 流动性不足时原样返回携带部分计划的错误，由调用方决定是否接受。
func (e *Executor) Quote(ctx context.Context, pair book.Pair, amount *big.Int) (planner.Plan, error) {
	snap, err := e.snaps.Fetch(ctx)
	if err != nil {
		return planner.Plan{}, err
	}
	return planner.Sweep(snap, pair, amount)
}

// Book 返回指定交易对当前可成交的卖方挂单。
func (e *Executor) Book(ctx context.Context, pair book.Pair) ([]book.Order, error) {
	snap, err := e.snaps.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Asks(pair), nil
}

// ExecuteMarket 执行一次市价扫单。卖出方向由调用方传入反转后的交易对表达，
// 两个方向共用同一条扫单路径，不存在挂激进单再撤销的旧式变通。
func (e *Executor) ExecuteMarket(ctx context.Context, req MarketRequest) (Result, error) {
	result := Result{
		Notes:         make([]string, 0, 2),
		ExecutionTime: time.Now().UTC(),
	}

	snap, err := e.snaps.Fetch(ctx)
	if err != nil {
		return result, err
	}

	plan, err := planner.Sweep(snap, req.Pair, req.Amount)
	if err != nil {
		var liqErr *planner.InsufficientLiquidityError
		if !errors.As(err, &liqErr) {
			return result, err
		}
		if !req.AllowPartial {
			return result, err
		}
		plan = liqErr.Partial
		result.Shortfall = liqErr.Shortfall()
		result.Notes = append(result.Notes, fmt.Sprintf("接受部分成交，缺口 %s", result.Shortfall))
	}
	result.Plan = plan

	if req.LimitQuote != nil && plan.TotalPay.Cmp(req.LimitQuote) > 0 {
		return result, fmt.Errorf("%w: 需要 %s, 上限 %s", ErrSlippageExceeded, plan.TotalPay, req.LimitQuote)
	}

	// rest 策略下余量挂单也要托管 Quote，授权与余额需一并覆盖。
	restQuote := e.restBudget(req, plan, result.Shortfall)
	totalNeed := new(big.Int).Add(plan.TotalPay, restQuote)

	if len(plan.Fills) == 0 && restQuote.Sign() == 0 {
		result.Notes = append(result.Notes, "无可执行成交")
		return result, nil
	}

	if totalNeed.Sign() > 0 {
		requirement, err := e.checkFunding(ctx, req.Pair.Quote, totalNeed)
		if err != nil {
			return result, err
		}
		result.Funding = requirement

		if requirement.NeedsApproval {
			if err := e.client.Approve(ctx, req.Pair.Quote, requirement.ApproveAmount); err != nil {
				return result, err
			}
		}
	}

	if len(plan.Fills) > 0 {
		if err := e.submit(ctx, plan); err != nil {
			return result, err
		}
		result.Executed = true
	}

	if restQuote.Sign() > 0 {
		id, err := e.client.CreateOrder(ctx, req.Pair.Quote, req.Pair.Base, restQuote, result.Shortfall)
		if err != nil {
			result.Notes = append(result.Notes, fmt.Sprintf("余量挂单失败: %v", err))
			return result, err
		}
		result.RestingOrderID = &id
		result.Notes = append(result.Notes, fmt.Sprintf("余量已挂回订单簿，序号 %d", id))
	}

	e.logger.Info("市价扫单完成",
		zap.String("base", req.Pair.Base.Hex()),
		zap.String("quote", req.Pair.Quote.Hex()),
		zap.String("requested", req.Amount.String()),
		zap.String("total_take", plan.TotalTake.String()),
		zap.String("total_pay", plan.TotalPay.String()),
		zap.Int("fills", len(plan.Fills)),
		zap.Bool("fully_filled", plan.FullyFilled),
	)

	return result, nil
}

// PlaceLimit 创建限价挂单。托管合约会在创建时划转卖方资金，
// 因此先做与扫单相同的余额与授权检查。
func (e *Executor) PlaceLimit(ctx context.Context, req LimitRequest) (uint64, error) {
	if req.SellAmount == nil || req.SellAmount.Sign() <= 0 {
		return 0, errors.New("execution: sellAmount 必须大于0")
	}
	if req.BuyAmount == nil || req.BuyAmount.Sign() <= 0 {
		return 0, errors.New("execution: buyAmount 必须大于0")
	}

	requirement, err := e.checkFunding(ctx, req.SellToken, req.SellAmount)
	if err != nil {
		return 0, err
	}
	if requirement.NeedsApproval {
		if err := e.client.Approve(ctx, req.SellToken, requirement.ApproveAmount); err != nil {
			return 0, err
		}
	}

	id, err := e.client.CreateOrder(ctx, req.SellToken, req.BuyToken, req.SellAmount, req.BuyAmount)
	if err != nil {
		return 0, err
	}

	e.logger.Info("限价挂单已创建",
		zap.Uint64("id", id),
		zap.String("sell_token", req.SellToken.Hex()),
		zap.String("sell_amount", req.SellAmount.String()),
	)
	return id, nil
}

// Cancel 撤销挂单。
func (e *Executor) Cancel(ctx context.Context, id uint64) error {
	return e.client.CancelOrder(ctx, id)
}

func (e *Executor) checkFunding(ctx context.Context, token common.Address, totalPay *big.Int) (funding.Requirement, error) {
	balance, err := e.client.BalanceOf(ctx, token, e.taker)
	if err != nil {
		return funding.Requirement{}, err
	}
	allowance, err := e.client.Allowance(ctx, token, e.taker)
	if err != nil {
		return funding.Requirement{}, err
	}
	return funding.Check(totalPay, balance, allowance)
}

// submit 提交计划。默认走单笔原子批量成交，计划总支付额即链上支付上限；
// 关闭批量时退化为逐单成交，每条腿在执行时由网关按当前状态校验。
func (e *Executor) submit(ctx context.Context, plan planner.Plan) error {
	if e.cfg.UseBatchFill {
		return e.client.FillMany(ctx, plan.Pair, plan.TotalTake, plan.TotalPay, plan.OrderIDs(), plan.Takes())
	}

	for _, fill := range plan.Fills {
		if err := e.client.FillOrder(ctx, fill.OrderID, fill.Take); err != nil {
			return err
		}
	}
	return nil
}

// restBudget 计算 rest 策略下余量挂单需要托管的 Quote 预算。
func (e *Executor) restBudget(req MarketRequest, plan planner.Plan, shortfall *big.Int) *big.Int {
	if shortfall == nil || shortfall.Sign() <= 0 {
		return new(big.Int)
	}
	if !strings.EqualFold(e.cfg.RemainderPolicy, config.RemainderPolicyRest) {
		return new(big.Int)
	}
	if req.LimitQuote == nil {
		e.logger.Warn("rest 策略缺少 limit_quote，余量不挂单")
		return new(big.Int)
	}
	budget := new(big.Int).Sub(req.LimitQuote, plan.TotalPay)
	if budget.Sign() <= 0 {
		return new(big.Int)
	}
	return budget
}
