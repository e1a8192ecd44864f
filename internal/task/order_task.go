package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"meli_erp_v1_202608/internal/api/dto"
	"meli_erp_v1_202608/internal/repository"
	"meli_erp_v1_202608/internal/service"
)

// ==================== OrderSyncTask 订单同步任务 ====================

// OrderSyncTask 订单同步定时任务
// 每 15 分钟增量拉取 + 对账长时间未同步的订单；每天凌晨做一次全量回补
type OrderSyncTask struct {
	accountRepo  repository.AccountRepository
	orderService *service.OrderService
	syncService  *service.SyncService
	cron         *cron.Cron

	// 并发控制
	concurrencyLimit int
	sleepTime        time.Duration

	// 对账参数
	staleAfter time.Duration
	staleLimit int
}

// NewOrderSyncTask 创建订单同步任务
func NewOrderSyncTask(
	accountRepo repository.AccountRepository,
	orderService *service.OrderService,
	syncService *service.SyncService,
) *OrderSyncTask {
	return &OrderSyncTask{
		accountRepo:      accountRepo,
		orderService:     orderService,
		syncService:      syncService,
		cron:             cron.New(cron.WithSeconds()),
		concurrencyLimit: 5,
		sleepTime:        200 * time.Millisecond,
		staleAfter:       30 * time.Minute,
		staleLimit:       100,
	}
}

// SetConcurrency 设置并发参数
func (t *OrderSyncTask) SetConcurrency(limit int, sleep time.Duration) {
	t.concurrencyLimit = limit
	t.sleepTime = sleep
}

// SetStalePolicy 设置对账筛选参数
func (t *OrderSyncTask) SetStalePolicy(after time.Duration, limit int) {
	t.staleAfter = after
	t.staleLimit = limit
}

// Start 启动定时任务
func (t *OrderSyncTask) Start() {
	// 首次执行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		log.Println("[OrderSyncTask] 执行首次订单同步...")
		t.syncAllAccounts(ctx, false)
	}()

	// 每 15 分钟增量同步 + 对账
	_, err := t.cron.AddFunc("0 */15 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		t.syncAllAccounts(ctx, false)
	})
	if err != nil {
		log.Printf("[OrderSyncTask] 定时任务启动失败: %v", err)
		return
	}

	// 每天 03:00 全量回补
	_, err = t.cron.AddFunc("0 0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Minute)
		defer cancel()
		log.Println("[OrderSyncTask] 开始每日全量回补...")
		t.syncAllAccounts(ctx, true)
	})
	if err != nil {
		log.Printf("[OrderSyncTask] 回补任务启动失败: %v", err)
		return
	}

	t.cron.Start()
	log.Println("[OrderSyncTask] 已启动 (每15分钟增量，每天03:00全量)")
}

// Stop 停止任务
func (t *OrderSyncTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("[OrderSyncTask] 已停止")
}

// syncAllAccounts 同步所有活跃卖家的订单
func (t *OrderSyncTask) syncAllAccounts(ctx context.Context, full bool) {
	accounts, err := t.accountRepo.ListActive(ctx)
	if err != nil {
		log.Printf("[OrderSyncTask] 获取卖家账号列表失败: %v", err)
		return
	}

	if len(accounts) == 0 {
		log.Println("[OrderSyncTask] 无活跃卖家需要同步")
		return
	}

	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	var (
		totalNew     int
		totalUpdated int
		totalErrors  int
		mu           sync.Mutex
	)

	log.Printf("[OrderSyncTask] 开始处理 %d 个卖家账号", len(accounts))

	for i := range accounts {
		account := accounts[i]
		select {
		case <-ctx.Done():
			log.Println("[OrderSyncTask] 任务超时停止")
			wg.Wait()
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		time.Sleep(t.sleepTime)

		go func(sellerID int64, nickname string) {
			defer wg.Done()
			defer func() { <-sem }()

			resp, err := t.orderService.SyncOrders(ctx, &dto.SyncOrdersRequest{
				SellerID: sellerID,
				Full:     full,
			})

			mu.Lock()
			if err != nil {
				log.Printf("[OrderSyncTask] 卖家 %s(%d) 同步失败: %v", nickname, sellerID, err)
				totalErrors++
				mu.Unlock()
				return
			}

			totalNew += resp.NewOrders
			totalUpdated += resp.UpdatedOrders

			if resp.NewOrders > 0 || resp.UpdatedOrders > 0 {
				log.Printf("[OrderSyncTask] 卖家 %s: 新增 %d, 更新 %d",
					nickname, resp.NewOrders, resp.UpdatedOrders)
			}
			for _, e := range resp.Errors {
				log.Printf("[OrderSyncTask] 卖家 %s 警告: %s", nickname, e)
			}
			mu.Unlock()

			// 拉取之后对账该卖家的滞留订单
			batch, rerr := t.syncService.ReconcileStale(ctx, sellerID, t.staleAfter, t.staleLimit)
			if rerr != nil {
				log.Printf("[OrderSyncTask] 卖家 %s 对账失败: %v", nickname, rerr)
				return
			}
			if batch.Total > 0 {
				log.Printf("[OrderSyncTask] 卖家 %s 对账批次 %s: 变更 %d / 失败 %d",
					nickname, batch.RunID, batch.Changed, batch.Failed)
			}
		}(account.MLUserID, account.Nickname)
	}

	wg.Wait()
	log.Printf("[OrderSyncTask] 同步完成: 卖家 %d, 新增 %d, 更新 %d, 错误 %d",
		len(accounts), totalNew, totalUpdated, totalErrors)
}

// ==================== 手动触发 ====================

// SyncAccountNow 立即同步单个卖家订单
func (t *OrderSyncTask) SyncAccountNow(ctx context.Context, sellerID int64, full bool) (*dto.SyncOrdersResponse, error) {
	return t.orderService.SyncOrders(ctx, &dto.SyncOrdersRequest{
		SellerID: sellerID,
		Full:     full,
	})
}

// SyncAllNow 立即同步所有卖家订单
func (t *OrderSyncTask) SyncAllNow() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		t.syncAllAccounts(ctx, false)
	}()
}
