package task

import (
	"context"
	"testing"
)

// ==================== 任务管理器 ====================

func TestTaskManager_DisabledTasks(t *testing.T) {
	tm := NewTaskManager(&TaskManagerDeps{}, &TaskManagerConfig{
		OrderEnabled: false,
		TokenEnabled: false,
	})

	status := tm.Status()
	if status["order"] || status["token"] {
		t.Fatalf("关闭的任务不应注册: %+v", status)
	}

	if _, err := tm.TriggerOrderSync(context.Background(), 123, false); err != ErrTaskDisabled {
		t.Errorf("订单任务关闭时触发应返回 ErrTaskDisabled, 实际 %v", err)
	}
	if err := tm.TriggerTokenRefresh(); err != ErrTaskDisabled {
		t.Errorf("Token 任务关闭时触发应返回 ErrTaskDisabled, 实际 %v", err)
	}

	// 空管理器的启停不应崩溃
	tm.Start()
	tm.Stop()
}

func TestTaskManager_NilConfigUsesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.OrderEnabled || !cfg.TokenEnabled {
		t.Fatal("默认配置应启用全部任务")
	}
	if cfg.OrderConcurrency <= 0 || cfg.StaleLimit <= 0 {
		t.Fatalf("默认并发参数无效: %+v", cfg)
	}
}
