package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/VietCT04/Decentralised-Exchange/internal/book"
)

// OrderReader 为快照读取所需的最小网关能力。
type OrderReader interface {
	OrdersLength(ctx context.Context) (uint64, error)
	OrderAt(ctx context.Context, id uint64) (book.Order, error)
}

// Snapshotter 对订单表做一次线性枚举，得到按序号排列的快照。
type Snapshotter struct {
	reader         OrderReader
	maxConcurrency int
	logger         *zap.Logger
}

// NewSnapshotter 创建快照读取器。
func NewSnapshotter(reader OrderReader, maxConcurrency int, logger *zap.Logger) *Snapshotter {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{
		reader:         reader,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Fetch 读取完整订单表快照。单次 getOrdersLength 确定区间 [0, length)，
// 各条目并发读取但按序号落位，结果保持原始序号顺序。
func (s *Snapshotter) Fetch(ctx context.Context) (book.Snapshot, error) {
	start := time.Now()

	length, err := s.reader.OrdersLength(ctx)
	if err != nil {
		return book.Snapshot{}, fmt.Errorf("读取订单表长度失败: %w", err)
	}

	orders := make([]book.Order, length)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxConcurrency)

	for id := uint64(0); id < length; id++ {
		group.Go(func() error {
			o, err := s.reader.OrderAt(groupCtx, id)
			if err != nil {
				return fmt.Errorf("读取挂单 %d 失败: %w", id, err)
			}
			o.ID = id
			// 链上数据不可信，非法挂单降级为 inactive，占住序号但不进入规划。
			if vErr := o.Validate(); vErr != nil {
				s.logger.Warn("挂单数据非法，已剔除",
					zap.Uint64("id", id),
					zap.Error(vErr),
				)
				o.Active = false
			}
			orders[id] = o
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return book.Snapshot{}, err
	}

	s.logger.Debug("订单表快照完成",
		zap.Uint64("length", length),
		zap.Duration("latency", time.Since(start)),
	)

	return book.Snapshot{Orders: orders, RetrievedAt: start.UTC()}, nil
}
