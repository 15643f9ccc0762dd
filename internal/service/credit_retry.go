package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"echelon/backend/config"
	"echelon/backend/internal/metrics"
	"echelon/backend/internal/model"
	appredis "echelon/backend/pkg/redis"
)

// ── 积分补偿队列 ──
// 库存已扣减但积分入账失败时，入账任务进入补偿队列；
// 重试沿用原 credit_id，账本按 credit_id 幂等，不会重复入账

// CreditJob 待补偿的入账任务
type CreditJob struct {
	Credit   model.PointCredit `json:"credit"`
	Attempts int               `json:"attempts"`
	// NotBefore 退避截止时间，未到期出队的任务放回队尾
	NotBefore time.Time `json:"not_before"`
}

// CreditQueue 补偿任务队列
type CreditQueue interface {
	Push(ctx context.Context, job *CreditJob) error
	// Pop 阻塞至多 timeout，无任务时返回 (nil, nil)
	Pop(ctx context.Context, timeout time.Duration) (*CreditJob, error)
}

// CreditRetryQueueKey Redis 补偿队列 key
const CreditRetryQueueKey = "echelon:credit:retry"

type redisCreditQueue struct {
	client *appredis.Client
}

// NewRedisCreditQueue 基于 Redis 列表的补偿队列，进程重启后任务不丢失
func NewRedisCreditQueue(client *appredis.Client) CreditQueue {
	return &redisCreditQueue{client: client}
}

func (q *redisCreditQueue) Push(ctx context.Context, job *CreditJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.PushJob(ctx, CreditRetryQueueKey, payload)
}

func (q *redisCreditQueue) Pop(ctx context.Context, timeout time.Duration) (*CreditJob, error) {
	payload, err := q.client.PopJob(ctx, CreditRetryQueueKey, timeout)
	if err != nil || payload == nil {
		return nil, err
	}
	var job CreditJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("补偿任务格式错误: %w", err)
	}
	return &job, nil
}

// ErrCreditQueueFull 内存补偿队列已满
var ErrCreditQueueFull = errors.New("积分补偿队列已满")

type memoryCreditQueue struct {
	jobs chan *CreditJob
}

// NewMemoryCreditQueue 进程内补偿队列（未启用 Redis 时使用）
func NewMemoryCreditQueue(size int) CreditQueue {
	if size <= 0 {
		size = 1024
	}
	return &memoryCreditQueue{jobs: make(chan *CreditJob, size)}
}

func (q *memoryCreditQueue) Push(_ context.Context, job *CreditJob) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrCreditQueueFull
	}
}

func (q *memoryCreditQueue) Pop(ctx context.Context, timeout time.Duration) (*CreditJob, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-q.jobs:
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ── 补偿 Worker ──

// CreditRetrier 消费补偿队列，逐个重放入账
type CreditRetrier struct {
	queue       CreditQueue
	ledger      LedgerService
	maxAttempts int
	backoff     time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewCreditRetrier 创建补偿 Worker
func NewCreditRetrier(
	cfg *config.EngineConfig,
	queue CreditQueue,
	ledger LedgerService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CreditRetrier {
	maxAttempts := cfg.CreditRetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &CreditRetrier{
		queue:       queue,
		ledger:      ledger,
		maxAttempts: maxAttempts,
		backoff:     cfg.CreditRetryBackoff,
		metrics:     m,
		logger:      logger,
	}
}

const creditPopTimeout = time.Second

// Run 持续消费直到 ctx 取消
func (r *CreditRetrier) Run(ctx context.Context) error {
	r.logger.Info("积分补偿 Worker 已启动", zap.Int("max_attempts", r.maxAttempts))

	// 连续推迟的任务轮转回第一个时，说明队列中没有到期任务
	var (
		firstDeferred string
		earliest      time.Time
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		job, err := r.queue.Pop(ctx, creditPopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("读取补偿队列失败", zap.Error(err))
			if !sleepCtx(ctx, r.backoff) {
				return nil
			}
			continue
		}
		if job == nil {
			firstDeferred = ""
			continue
		}

		now := time.Now()
		if !now.Before(job.NotBefore) {
			firstDeferred = ""
			r.process(ctx, job)
			continue
		}

		if job.Credit.CreditID == firstDeferred {
			if !sleepCtx(ctx, min(earliest.Sub(now), creditPopTimeout)) {
				r.requeue(ctx, job)
				return nil
			}
			firstDeferred = ""
		}
		if firstDeferred == "" || job.NotBefore.Before(earliest) {
			earliest = job.NotBefore
		}
		if firstDeferred == "" {
			firstDeferred = job.Credit.CreditID
		}
		r.requeue(ctx, job)
	}
}

// process 执行一次重放；失败且未达上限时带退避时间立即放回队列
func (r *CreditRetrier) process(ctx context.Context, job *CreditJob) {
	job.Attempts++
	log := r.logger.With(
		zap.String("credit_id", job.Credit.CreditID),
		zap.String("user_id", job.Credit.UserID),
		zap.Int64("amount", job.Credit.Amount),
		zap.Int("attempt", job.Attempts),
	)

	_, err := r.ledger.ApplyCredit(ctx, &job.Credit)
	if err == nil {
		r.metrics.ObserveCreditRetry("applied")
		log.Info("补偿入账成功")
		return
	}

	if errors.Is(err, ErrUserNotFound) || job.Attempts >= r.maxAttempts {
		r.metrics.ObserveCreditRetry("abandoned")
		log.Error("补偿入账放弃，需人工处理", zap.Error(err))
		return
	}

	r.metrics.ObserveCreditRetry("failed")
	log.Warn("补偿入账失败，稍后重试", zap.Error(err))

	// 线性退避
	job.NotBefore = time.Now().Add(r.backoff * time.Duration(job.Attempts))
	r.requeue(ctx, job)
}

// requeue 放回队列；停机时也要放回
func (r *CreditRetrier) requeue(ctx context.Context, job *CreditJob) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := r.queue.Push(pushCtx, job); err != nil {
		r.logger.Error("补偿任务重新入队失败，需人工处理",
			zap.String("credit_id", job.Credit.CreditID),
			zap.Error(err),
		)
	}
}

// sleepCtx 等待 d 或 ctx 取消，ctx 取消时返回 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
