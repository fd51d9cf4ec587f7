package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
	"github.com/VietCT04/Decentralised-Exchange/internal/config"
)

// escrowOrder 与合约 getOrder 返回的元组字段对应。
type escrowOrder struct {
	Owner         common.Address
	SellToken     common.Address
	BuyToken      common.Address
	SellAmount    *big.Int
	BuyAmount     *big.Int
	RemainingSell *big.Int
	Active        bool
}

// Client 通过 JSON-RPC 访问托管合约，并对只读调用实现重试机制。
// 交易类调用绝不重试：回滚必须原样上抛，由调用方重新拉取快照后重新规划。
type Client struct {
	cfg     config.GatewayConfig
	logger  *zap.Logger
	eth     *ethclient.Client
	dexAddr common.Address
	dexMeta abi.ABI
	dex     *bind.BoundContract
	ercMeta abi.ABI
	auth    *bind.TransactOpts
	from    common.Address

	// 同一账户的交易串行提交，避免 nonce 乱序。
	txMu sync.Mutex
}

// NewClient 构造托管合约网关客户端。
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: 连接节点失败: %w", err)
	}

	dexMeta, err := abi.JSON(strings.NewReader(dexABI))
	if err != nil {
		return nil, fmt.Errorf("gateway: 解析合约 ABI 失败: %w", err)
	}
	ercMeta, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("gateway: 解析 ERC20 ABI 失败: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		eth:     eth,
		dexAddr: common.HexToAddress(cfg.DexAddress),
		dexMeta: dexMeta,
		ercMeta: ercMeta,
	}
	c.dex = bind.NewBoundContract(c.dexAddr, dexMeta, eth, eth, eth)

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("gateway: 解析私钥失败: %w", err)
		}
		auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
		if err != nil {
			return nil, fmt.Errorf("gateway: 构造签名器失败: %w", err)
		}
		c.auth = auth
		c.from = auth.From
	}

	return c, nil
}

// From 返回签名账户地址。
func (c *Client) From() common.Address {
	return c.from
}

// DexAddress 返回托管合约地址。
func (c *Client) DexAddress() common.Address {
	return c.dexAddr
}

// Close 释放底层 RPC 连接。
func (c *Client) Close() {
	c.eth.Close()
}

// OrdersLength 返回订单表长度。
func (c *Client) OrdersLength(ctx context.Context) (uint64, error) {
	var out []interface{}
	err := c.callWithRetry(ctx, "get_orders_length", func() error {
		out = out[:0]
		return c.dex.Call(&bind.CallOpts{Context: ctx}, &out, "getOrdersLength")
	})
	if err != nil {
		return 0, err
	}
	length, ok := out[0].(*big.Int)
	if !ok {
		return 0, errors.New("gateway: getOrdersLength 返回类型异常")
	}
	return length.Uint64(), nil
}

// OrderAt 读取指定序号的挂单。
func (c *Client) OrderAt(ctx context.Context, id uint64) (book.Order, error) {
	var out []interface{}
	err := c.callWithRetry(ctx, "get_order", func() error {
		out = out[:0]
		return c.dex.Call(&bind.CallOpts{Context: ctx}, &out, "getOrder", new(big.Int).SetUint64(id))
	})
	if err != nil {
		return book.Order{}, err
	}

	raw := *abi.ConvertType(out[0], new(escrowOrder)).(*escrowOrder)
	return book.Order{
		ID:            id,
		Owner:         raw.Owner,
		SellToken:     raw.SellToken,
		BuyToken:      raw.BuyToken,
		SellAmount:    raw.SellAmount,
		BuyAmount:     raw.BuyAmount,
		RemainingSell: raw.RemainingSell,
		Active:        raw.Active,
	}, nil
}

// CreateOrder 创建限价挂单并从回执事件中解析新序号。
func (c *Client) CreateOrder(ctx context.Context, sellToken, buyToken common.Address, sellAmount, buyAmount *big.Int) (uint64, error) {
	receipt, err := c.transact(ctx, "create_order", c.dex, "createOrder", sellToken, buyToken, sellAmount, buyAmount)
	if err != nil {
		return 0, err
	}

	createdTopic := c.dexMeta.Events["OrderCreated"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != c.dexAddr || len(lg.Topics) < 2 || lg.Topics[0] != createdTopic {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(), nil
	}
	return 0, fmt.Errorf("gateway: 回执中未找到 OrderCreated 事件: %s", receipt.TxHash.Hex())
}

// CancelOrder 撤销挂单。
func (c *Client) CancelOrder(ctx context.Context, id uint64) error {
	_, err := c.transact(ctx, "cancel_order", c.dex, "cancelOrder", new(big.Int).SetUint64(id))
	return err
}

// FillOrder 吃掉单个挂单的指定数量。
func (c *Client) FillOrder(ctx context.Context, id uint64, take *big.Int) error {
	_, err := c.transact(ctx, "fill_order", c.dex, "fillOrder", new(big.Int).SetUint64(id), take)
	return err
}

// FillMany 在单笔交易内原子执行整份扫单计划。
func (c *Client) FillMany(ctx context.Context, pair book.Pair, requested, maxPay *big.Int, ids []uint64, takes []*big.Int) error {
	if len(ids) != len(takes) {
		return fmt.Errorf("gateway: 挂单序号与数量长度不一致: %d vs %d", len(ids), len(takes))
	}
	makerIDs := make([]*big.Int, len(ids))
	for i, id := range ids {
		makerIDs[i] = new(big.Int).SetUint64(id)
	}
	_, err := c.transact(ctx, "fill_many", c.dex,
		"fillManyBuyBase", pair.Base, pair.Quote, requested, maxPay, makerIDs, takes)
	return err
}

// BalanceOf 查询代币余额。
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.erc20View(ctx, "balance_of", token, "balanceOf", owner)
}

// Allowance 查询对托管合约的授权额度。
func (c *Client) Allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.erc20View(ctx, "allowance", token, "allowance", owner, c.dexAddr)
}

// Approve 将对托管合约的授权额度提升到指定值。
func (c *Client) Approve(ctx context.Context, token common.Address, amount *big.Int) error {
	erc := bind.NewBoundContract(token, c.ercMeta, c.eth, c.eth, c.eth)
	_, err := c.transact(ctx, "approve", erc, "approve", c.dexAddr, amount)
	if err != nil {
		return err
	}
	c.logger.Info("授权额度已更新",
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()),
	)
	return nil
}

func (c *Client) erc20View(ctx context.Context, op string, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	erc := bind.NewBoundContract(token, c.ercMeta, c.eth, c.eth, c.eth)
	var out []interface{}
	err := c.callWithRetry(ctx, op, func() error {
		out = out[:0]
		return erc.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	})
	if err != nil {
		return nil, err
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("gateway: %s 返回类型异常", method)
	}
	return value, nil
}

func (c *Client) transact(ctx context.Context, op string, contract *bind.BoundContract, method string, args ...interface{}) (*types.Receipt, error) {
	if c.auth == nil {
		return nil, errors.New("gateway: 未配置私钥，无法提交交易")
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	opts := *c.auth
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway: 提交 %s 交易失败: %w", op, err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("gateway: 等待 %s 交易回执失败: %w", op, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &RevertError{Op: op, TxHash: tx.Hash()}
	}

	c.logger.Debug("交易已确认",
		zap.String("operation", op),
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return receipt, nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("节点调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		if !isTransient(err) || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("节点调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(err),
			)
			return fmt.Errorf("gateway: %s 调用失败: %w", operation, err)
		}

		c.logger.Warn("节点调用失败，准备重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// isTransient 判断错误是否为可重试的传输层故障。合约回滚不在其列。
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"too many requests",
		"502", "503",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
