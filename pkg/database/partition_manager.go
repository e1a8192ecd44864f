package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
)

// PartitionManager 按月分区的流水表管理器
// 订单状态流水只增不改、量大且有保留期，走 PostgreSQL 原生 RANGE 分区：
// 主表由嵌入 SQL 创建，月度子分区在这里滚动维护
type PartitionManager struct {
	db     *gorm.DB
	config *PartitionConfig
}

func NewPartitionManager(db *gorm.DB, config *PartitionConfig) *PartitionManager {
	return &PartitionManager{db: db, config: config}
}

// partitionName 子分区命名：<主表>_y<年>m<月>
func partitionName(tableName string, month time.Time) string {
	return fmt.Sprintf("%s_y%dm%02d", tableName, month.Year(), month.Month())
}

// monthStart 归一到当月一号零点（UTC，分区边界统一用 UTC）
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// relationExists 查 pg_tables，主表和子分区都算普通关系
func (m *PartitionManager) relationExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM pg_tables
		WHERE schemaname = 'public' AND tablename = ?
	`, name).Scan(&count).Error
	return count > 0, err
}

// ==================== 初始化 ====================

// InitPartitionTables 按嵌入 SQL 创建分区主表，已存在的跳过
func (m *PartitionManager) InitPartitionTables(ctx context.Context) error {
	for _, table := range m.config.Tables {
		exists, err := m.relationExists(ctx, table.TableName)
		if err != nil {
			return fmt.Errorf("检查表 %s 失败: %w", table.TableName, err)
		}
		if exists {
			log.Printf("[Partition] 流水主表 %s 已存在", table.TableName)
			continue
		}

		if err := m.db.WithContext(ctx).Exec(table.SQLContent).Error; err != nil {
			return fmt.Errorf("创建表 %s 失败: %w", table.TableName, err)
		}
		log.Printf("[Partition] 流水主表 %s 已创建", table.TableName)
	}
	return nil
}

// ==================== 分区滚动 ====================

// EnsureFuturePartitions 保证当月起未来 monthsAhead 个月的子分区就位
// 单表失败不中断其余表，避免一张表的问题拖垮整个滚动
func (m *PartitionManager) EnsureFuturePartitions(ctx context.Context, monthsAhead int) error {
	base := monthStart(time.Now())
	for _, table := range m.config.Tables {
		for i := 0; i <= monthsAhead; i++ {
			month := base.AddDate(0, i, 0)
			if err := m.ensurePartition(ctx, table.TableName, month); err != nil {
				log.Printf("[Partition] 表 %s 月份 %s 分区创建失败: %v",
					table.TableName, month.Format("2006-01"), err)
			}
		}
	}
	return nil
}

func (m *PartitionManager) ensurePartition(ctx context.Context, tableName string, month time.Time) error {
	name := partitionName(tableName, month)

	exists, err := m.relationExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	stmt := fmt.Sprintf(
		`CREATE TABLE %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
		name, tableName,
		month.Format("2006-01-02"),
		month.AddDate(0, 1, 0).Format("2006-01-02"),
	)
	if err := m.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		// 并发初始化时可能撞到同名分区
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return err
	}

	log.Printf("[Partition] 新建分区 %s", name)
	return nil
}

// ==================== 过期清理 ====================

// CleanupExpiredPartitions 按各表保留月数丢弃过期子分区，返回丢弃数量
// 整分区 DROP，比按行 DELETE 快且不产生膨胀
func (m *PartitionManager) CleanupExpiredPartitions(ctx context.Context) (int, error) {
	dropped := 0
	for _, table := range m.config.Tables {
		if table.RetentionMonth == 0 {
			continue // 永久保留
		}
		cutoff := monthStart(time.Now().AddDate(0, -table.RetentionMonth, 0))

		partitions, err := m.ListPartitions(ctx, table.TableName)
		if err != nil {
			log.Printf("[Partition] 枚举 %s 分区失败: %v", table.TableName, err)
			continue
		}
		for _, p := range partitions {
			month, err := m.parsePartitionMonth(p.Name, table.TableName)
			if err != nil || !month.Before(cutoff) {
				continue
			}
			if err := m.db.WithContext(ctx).Exec(
				fmt.Sprintf("DROP TABLE IF EXISTS %s", p.Name),
			).Error; err != nil {
				log.Printf("[Partition] 丢弃 %s 失败: %v", p.Name, err)
				continue
			}
			log.Printf("[Partition] 丢弃过期分区 %s", p.Name)
			dropped++
		}
	}
	return dropped, nil
}

// parsePartitionMonth 从子分区名反解归属月份
func (m *PartitionManager) parsePartitionMonth(name, tableName string) (time.Time, error) {
	suffix := strings.TrimPrefix(name, tableName+"_y")
	if suffix == name || len(suffix) < 6 {
		return time.Time{}, fmt.Errorf("分区名 %s 不符合命名约定", name)
	}
	var year, month int
	if _, err := fmt.Sscanf(suffix, "%dm%d", &year, &month); err != nil {
		return time.Time{}, err
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// ==================== 巡检 ====================

// PartitionInfo 子分区信息
type PartitionInfo struct {
	Name      string `gorm:"column:partition_name"`
	Range     string `gorm:"column:partition_range"`
	SizeBytes int64  `gorm:"column:size_bytes"`
}

// ListPartitions 枚举某主表下的全部子分区
func (m *PartitionManager) ListPartitions(ctx context.Context, tableName string) ([]PartitionInfo, error) {
	var partitions []PartitionInfo
	err := m.db.WithContext(ctx).Raw(`
		SELECT
			child.relname AS partition_name,
			pg_get_expr(child.relpartbound, child.oid) AS partition_range,
			pg_total_relation_size(child.oid) AS size_bytes
		FROM pg_inherits
		JOIN pg_class parent ON pg_inherits.inhparent = parent.oid
		JOIN pg_class child ON pg_inherits.inhrelid = child.oid
		WHERE parent.relname = ?
		ORDER BY child.relname
	`, tableName).Scan(&partitions).Error
	return partitions, err
}

// TableStats 分区表体量统计
type TableStats struct {
	TableName      string `gorm:"column:table_name"`
	PartitionCount int    `gorm:"column:partition_count"`
	TotalSizeBytes int64  `gorm:"column:total_size_bytes"`
}

// GetAllStats 各流水表的分区数与占用
func (m *PartitionManager) GetAllStats(ctx context.Context) ([]TableStats, error) {
	tableNames := m.config.GetTableNames()
	if len(tableNames) == 0 {
		return nil, nil
	}

	var stats []TableStats
	err := m.db.WithContext(ctx).Raw(`
		SELECT
			parent.relname AS table_name,
			COUNT(child.relname) AS partition_count,
			COALESCE(SUM(pg_total_relation_size(child.oid)), 0) AS total_size_bytes
		FROM pg_inherits
		JOIN pg_class parent ON pg_inherits.inhparent = parent.oid
		JOIN pg_class child ON pg_inherits.inhrelid = child.oid
		WHERE parent.relname IN ?
		GROUP BY parent.relname
		ORDER BY parent.relname
	`, tableNames).Scan(&stats).Error
	return stats, err
}

// HealthCheck 当月和下月的子分区必须在位，否则流水写入会直接报错
func (m *PartitionManager) HealthCheck(ctx context.Context) error {
	current := monthStart(time.Now())
	var missing []string
	for _, table := range m.config.Tables {
		for _, month := range []time.Time{current, current.AddDate(0, 1, 0)} {
			name := partitionName(table.TableName, month)
			exists, _ := m.relationExists(ctx, name)
			if !exists {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺失分区: %v", missing)
	}
	return nil
}
