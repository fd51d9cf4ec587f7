package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/VietCT04/Decentralised-Exchange/internal/execution"
	"github.com/VietCT04/Decentralised-Exchange/internal/planner"
	"github.com/VietCT04/Decentralised-Exchange/internal/store"
)

// Service 负责持久化扫单事件。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化事件存储，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("history: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS sweep_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sweep_events_type ON sweep_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("history: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("history: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sweep_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("history: 写入事件失败: %w", err)
	}

	return nil
}

// RecordQuote 记录报价结果。
func (s *Service) RecordQuote(ctx context.Context, plan planner.Plan, shortfall *big.Int) {
	if err := s.Record(ctx, Event{
		Type:    EventQuote,
		Payload: QuotePayload{Plan: plan, Shortfall: shortfall},
	}); err != nil {
		s.logger.Warn("记录报价事件失败", zap.Error(err))
	}
}

// RecordExecution 记录扫单执行结果。
func (s *Service) RecordExecution(ctx context.Context, result execution.Result) {
	if err := s.Record(ctx, Event{
		Type:    EventExecution,
		Payload: ExecutionPayload{Result: result},
	}); err != nil {
		s.logger.Warn("记录执行事件失败", zap.Error(err))
	}
}

// RecordOrder 记录限价挂单动作。
func (s *Service) RecordOrder(ctx context.Context, action string, orderID uint64) {
	if err := s.Record(ctx, Event{
		Type:    EventOrder,
		Payload: OrderPayload{Action: action, OrderID: orderID},
	}); err != nil {
		s.logger.Warn("记录挂单事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, message string, cause error) {
	payload := ErrorPayload{Message: message}
	if cause != nil {
		payload.Error = cause.Error()
	}
	if err := s.Record(ctx, Event{
		Type:    EventError,
		Payload: payload,
	}); err != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(err))
	}
}

// StoredEvent 为查询返回的事件行。
type StoredEvent struct {
	ID        int64           `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListEvents 按时间倒序返回事件，eventType 为空时不过滤。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT id, event_type, payload, created_at FROM sweep_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: 查询事件失败: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var (
			ev      StoredEvent
			typ     string
			payload string
			created string
		)
		if err := rows.Scan(&ev.ID, &typ, &payload, &created); err != nil {
			return nil, fmt.Errorf("history: 读取事件行失败: %w", err)
		}
		ev.Type = EventType(typ)
		ev.Payload = json.RawMessage(payload)
		if ts, err := time.Parse(time.RFC3339, created); err == nil {
			ev.CreatedAt = ts
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: 遍历事件失败: %w", err)
	}

	return events, nil
}
