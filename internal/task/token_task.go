package task

import (
	"context"
	"log"
	"sync"
	"time"

	"meli_erp_v1_202608/internal/model"
	"meli_erp_v1_202608/internal/repository"
	"meli_erp_v1_202608/internal/service"

	"github.com/robfig/cron/v3"
)

// TokenTask Token 保活任务
// 平台 Token 有效期 6 小时，每 40 分钟提前刷新一轮，
// 避免业务请求在解析 Token 时才触发刷新
type TokenTask struct {
	AccountRepo  repository.AccountRepository
	TokenService *service.TokenService
	Cron         *cron.Cron

	// 控制并发刷新的数量
	concurrencyLimit int
	sleepTime        time.Duration
}

func NewTokenTask(accountRepo repository.AccountRepository, tokenService *service.TokenService) *TokenTask {
	return &TokenTask{
		AccountRepo:      accountRepo,
		TokenService:     tokenService,
		Cron:             cron.New(cron.WithSeconds()), // 支持秒级控制
		concurrencyLimit: 10,
		sleepTime:        50 * time.Millisecond, // 每个协程启动间隔，平滑波峰
	}
}

// Start 启动定时任务
func (t *TokenTask) Start() {
	// 首次执行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		log.Println("[TokenTask] 服务启动，正在执行首次 Token 检查...")
		t.refreshJob(ctx)
	}()

	// 定时策略
	_, err := t.Cron.AddFunc("0 0/40 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		t.refreshJob(ctx)
	})

	if err != nil {
		log.Fatalf("无法启动 Token 定时任务: %v", err)
	}

	t.Cron.Start()
	log.Println("[TokenTask] Token 保活任务已启动 (每40分钟检查一次)")
}

// Stop 停止任务
func (t *TokenTask) Stop() {
	ctx := t.Cron.Stop()
	<-ctx.Done()
	log.Println("[TokenTask] 已停止")
}

// refreshJob 自动刷新逻辑
func (t *TokenTask) refreshJob(ctx context.Context) {
	accounts, err := t.AccountRepo.ListActive(ctx)
	if err != nil {
		log.Printf("[TokenTask] 卖家账号查询失败: %v", err)
		return
	}

	// 信号量通道，容量即为并发上限
	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	log.Printf("[TokenTask] 开始处理 %d 个卖家的 Token 刷新，并发上限: %d", len(accounts), t.concurrencyLimit)

	for _, account := range accounts {
		select {
		case <-ctx.Done():
			log.Println("[TokenTask] 任务超时停止")
			wg.Wait()
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		time.Sleep(t.sleepTime)

		go func(a model.MLAccount) {
			defer wg.Done()
			defer func() { <-sem }()

			err := t.TokenService.Refresh(ctx, a.MLUserID)
			if err == service.ErrReauthorizationRequired {
				// 刷新被平台拒绝，停用账号等待人工重新授权
				log.Printf("[TokenTask] 卖家 [%s] 需要重新授权，账号已停用", a.Nickname)
				_ = t.AccountRepo.UpdateStatus(ctx, a.ID, model.AccountStatusPending)
				return
			}
			if err != nil {
				// 日志仅记录，不中断其他协程
				log.Printf("[TokenTask] 卖家 [%s] 刷新失败: %v", a.Nickname, err)
			}
		}(account)
	}

	wg.Wait()
	log.Println("[TokenTask] 本轮 Token 刷新任务完成")
}

// RefreshNow 立即执行一轮刷新
func (t *TokenTask) RefreshNow() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.refreshJob(ctx)
	}()
}
