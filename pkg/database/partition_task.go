package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// PartitionTask 流水分区的日常维护
// 启动时先跑一轮，之后按固定周期：巡检缺位分区、滚动创建未来分区、
// 丢弃超出保留期的旧分区
type PartitionTask struct {
	manager      *PartitionManager
	cron         *cron.Cron
	futureMonths int
	interval     time.Duration
}

func NewPartitionTask(manager *PartitionManager, opts ...PartitionTaskOption) *PartitionTask {
	t := &PartitionTask{
		manager:      manager,
		cron:         cron.New(),
		futureMonths: 3,
		interval:     24 * time.Hour,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// PartitionTaskOption 任务选项
type PartitionTaskOption func(*PartitionTask)

// WithFutureMonths 设置预建的未来分区月数
func WithFutureMonths(months int) PartitionTaskOption {
	return func(t *PartitionTask) {
		t.futureMonths = months
	}
}

// WithInterval 设置维护周期
func WithInterval(d time.Duration) PartitionTaskOption {
	return func(t *PartitionTask) {
		t.interval = d
	}
}

// Start 启动维护任务
func (t *PartitionTask) Start() {
	go t.maintain()

	_, err := t.cron.AddFunc(fmt.Sprintf("@every %s", t.interval), t.maintain)
	if err != nil {
		log.Fatalf("无法启动分区维护任务: %v", err)
	}
	t.cron.Start()

	log.Printf("[PartitionTask] 分区维护已启动 (周期 %v, 预建 %d 个月)", t.interval, t.futureMonths)
}

// Stop 停止任务，等待进行中的维护收尾
func (t *PartitionTask) Stop() {
	<-t.cron.Stop().Done()
	log.Println("[PartitionTask] 已停止")
}

// maintain 单轮维护
func (t *PartitionTask) maintain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()

	if err := t.manager.HealthCheck(ctx); err != nil {
		// 缺位分区下面会立刻补上，这里只留痕
		log.Printf("[PartitionTask] 巡检: %v", err)
	}

	if err := t.manager.EnsureFuturePartitions(ctx, t.futureMonths); err != nil {
		log.Printf("[PartitionTask] 滚动创建分区失败: %v", err)
	}

	dropped, err := t.manager.CleanupExpiredPartitions(ctx)
	if err != nil {
		log.Printf("[PartitionTask] 清理过期分区失败: %v", err)
	} else if dropped > 0 {
		log.Printf("[PartitionTask] 已丢弃 %d 个过期分区", dropped)
	}

	if stats, err := t.manager.GetAllStats(ctx); err == nil {
		for _, s := range stats {
			log.Printf("[PartitionTask] %s: %d 分区, %.2f MB",
				s.TableName, s.PartitionCount, float64(s.TotalSizeBytes)/1024/1024)
		}
	}

	log.Printf("[PartitionTask] 本轮维护完成，耗时 %v", time.Since(start))
}
