package main

import (
	"context"
	"errors"
	"log"
	"meli_erp_v1_202608/internal/controller"
	"meli_erp_v1_202608/internal/middleware"
	"meli_erp_v1_202608/internal/model"
	"meli_erp_v1_202608/internal/repository"
	"meli_erp_v1_202608/internal/router"
	"meli_erp_v1_202608/internal/service"
	"meli_erp_v1_202608/internal/task"
	"meli_erp_v1_202608/pkg/database"
	"meli_erp_v1_202608/pkg/net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	// 1. 初始化数据库（普通表 AutoMigrate，流水表走分区建表）
	db, partTask := initDatabase()
	partTask.Start()
	defer partTask.Stop()

	// 2. 初始化依赖
	deps := initDependencies(db)

	// 3. 启动定时任务
	taskManager := initTasks(deps)
	defer taskManager.Stop()

	// 4. 初始化路由
	r := gin.Default()
	router.InitRoutes(r, deps.Controllers.Auth, deps.Controllers.Order, deps.Controllers.Invoice, deps.Controllers.Sync)

	// 5. 启动服务
	startServer(r)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Dispatcher  net.Dispatcher
	Services    *Services
	Controllers *Controllers
}

// Repositories 仓库集合
type Repositories struct {
	Account repository.AccountRepository
	Token   repository.TokenRepository
	Order   repository.OrderRepository
	Event   repository.OrderEventRepository
	Company repository.CompanyRepository
}

// Services 服务集合
type Services struct {
	Token   *service.TokenService
	Meli    *service.MeliService
	Order   *service.OrderService
	Invoice *service.InvoiceService
	Emitter *service.EmitterService
	Sync    *service.SyncService
}

// Controllers 控制器集合
type Controllers struct {
	Auth    *controller.AuthController
	Order   *controller.OrderController
	Invoice *controller.InvoiceController
	Sync    *controller.SyncController
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
// ml_order_events 是按月分区表，建表/建分区走嵌入 SQL；其余表 AutoMigrate
func initDatabase() (*gorm.DB, *database.PartitionTask) {
	dsn := getEnv("DATABASE_DSN",
		"host=localhost user=postgres password=postgres dbname=meli_erp port=5432 sslmode=disable TimeZone=America/Sao_Paulo")

	db := database.InitDB(dsn, getEnv("DB_LOG_VERBOSE", "") == "true")

	initializer, err := database.NewInitializer(db, database.InitOptions{
		EmbedFS:   &database.PartitionSQL,
		EmbedRoot: "partitions",
		NonPartitionedModels: []interface{}{
			// 账号
			&model.MLAccount{}, &model.Token{},
			// 企业
			&model.CompanyFiscalProfile{},
			// 订单
			&model.Order{},
		},
		FutureMonths: getEnvInt("PARTITION_FUTURE_MONTHS", 3),
	})
	if err != nil {
		log.Fatalf("数据库初始化器创建失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := initializer.Initialize(ctx); err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}

	return db, database.NewPartitionTask(initializer.GetManager())
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB) *Dependencies {
	// -------- Repo 层 --------
	repos := &Repositories{
		Account: repository.NewAccountRepository(db),
		Token:   repository.NewTokenRepository(db),
		Order:   repository.NewOrderRepository(db),
		Event:   repository.NewOrderEventRepository(db),
		Company: repository.NewCompanyRepository(db),
	}

	// -------- 基础服务 --------
	dispatcher := net.NewDispatcher()

	tokenSvc := service.NewTokenService(service.TokenServiceConfig{
		ClientID:     getEnv("ML_CLIENT_ID", ""),
		ClientSecret: getEnv("ML_CLIENT_SECRET", ""),
		RedirectURI:  getEnv("ML_REDIRECT_URI", ""),
	}, repos.Token, repos.Account)

	meliSvc := service.NewMeliService(tokenSvc, dispatcher)

	// -------- 业务服务 --------
	services := &Services{
		Token: tokenSvc,
		Meli:  meliSvc,
	}
	services.Order = service.NewOrderService(repos.Order, repos.Account, repos.Event, meliSvc)
	services.Invoice = service.NewInvoiceService(meliSvc, repos.Order)
	services.Emitter = service.NewEmitterService(meliSvc, services.Invoice, repos.Order, repos.Account, repos.Company)

	// 对账未命中发票时顺带开票，默认关闭
	var reconcileEmitter *service.EmitterService
	if getEnv("RECONCILE_AUTO_EMIT", "false") == "true" {
		reconcileEmitter = services.Emitter
	}
	services.Sync = service.NewSyncService(repos.Order, repos.Event, meliSvc, services.Invoice, reconcileEmitter)

	// -------- JWT --------
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		middleware.SetJWTConfig(&middleware.JWTConfig{
			SecretKey:       secret,
			AccessTokenTTL:  2 * time.Hour,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			Issuer:          getEnv("JWT_ISSUER", "meli-erp"),
		})
	}

	return &Dependencies{
		DB:         db,
		Repos:      repos,
		Dispatcher: dispatcher,
		Services:   services,
	}
}

// initControllers 初始化所有控制器
func initControllers(deps *Dependencies, taskManager *task.TaskManager) *Controllers {
	return &Controllers{
		Auth: controller.NewAuthController(deps.Services.Token,
			getEnv("API_USER", "admin"), getEnv("API_SECRET", "")),
		Order:   controller.NewOrderController(deps.Services.Order),
		Invoice: controller.NewInvoiceController(deps.Services.Invoice, deps.Services.Emitter),
		Sync:    controller.NewSyncController(taskManager, deps.Services.Sync),
	}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(deps *Dependencies) *task.TaskManager {
	cfg := task.DefaultConfig()
	cfg.OrderEnabled = getEnv("ORDER_SYNC_ENABLED", "true") == "true"
	cfg.TokenEnabled = getEnv("TOKEN_REFRESH_ENABLED", "true") == "true"
	if n := getEnvInt("ORDER_SYNC_CONCURRENCY", 0); n > 0 {
		cfg.OrderConcurrency = n
	}
	if n := getEnvInt("ORDER_STALE_MINUTES", 0); n > 0 {
		cfg.StaleAfter = time.Duration(n) * time.Minute
	}

	taskManager := task.NewTaskManager(&task.TaskManagerDeps{
		AccountRepo:  deps.Repos.Account,
		OrderService: deps.Services.Order,
		SyncService:  deps.Services.Sync,
		TokenService: deps.Services.Token,
	}, cfg)
	taskManager.Start()

	deps.Controllers = initControllers(deps, taskManager)

	log.Println("定时任务已启动")
	return taskManager
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(r *gin.Engine) {
	port := getEnv("SERVER_PORT", "8080")

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动在 :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 优雅关闭，最多等待 30 秒
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}

	log.Println("服务已退出")
}

// ==================== 工具函数 ====================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
