package database

import (
	"strings"
	"testing"
	"time"
)

func TestLoadPartitionConfig_Embedded(t *testing.T) {
	cfg, err := LoadPartitionConfig(PartitionSQL, "partitions")
	if err != nil {
		t.Fatalf("加载嵌入分区配置失败: %v", err)
	}

	table := cfg.GetTable("ml_order_events")
	if table == nil {
		t.Fatal("未找到 ml_order_events 分区配置")
	}
	if table.RetentionMonth != 12 {
		t.Errorf("期望保留 12 个月，实际 %d", table.RetentionMonth)
	}
	if !strings.Contains(table.SQLContent, "PARTITION BY RANGE (occurred_at)") {
		t.Error("建表 SQL 缺少按 occurred_at 的分区声明")
	}
}

func TestPartitionConfig_ParseErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr bool
		tables  int
	}{
		{"正常", "ml_order_events,12\n", false, 1},
		{"跳过注释和空行", "# 注释\n\nml_order_events,12\n", false, 1},
		{"字段数错误", "ml_order_events\n", true, 0},
		{"保留月数非数字", "ml_order_events,abc\n", true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &PartitionConfig{}
			err := cfg.parseConfig(tc.content)
			if tc.wantErr && err == nil {
				t.Error("期望解析报错，实际成功")
			}
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("解析失败: %v", err)
				}
				if len(cfg.Tables) != tc.tables {
					t.Errorf("期望 %d 个表，实际 %d", tc.tables, len(cfg.Tables))
				}
			}
		})
	}
}

func TestPartitionNaming_RoundTrip(t *testing.T) {
	m := &PartitionManager{}

	month := time.Date(2026, 11, 17, 9, 30, 0, 0, time.UTC)
	name := partitionName("ml_order_events", monthStart(month))
	if name != "ml_order_events_y2026m11" {
		t.Fatalf("分区命名不符: %q", name)
	}

	parsed, err := m.parsePartitionMonth(name, "ml_order_events")
	if err != nil {
		t.Fatalf("反解分区名失败: %v", err)
	}
	if !parsed.Equal(monthStart(month)) {
		t.Errorf("反解月份应为 %v, 实际 %v", monthStart(month), parsed)
	}
}

func TestPartitionManager_ParsePartitionMonth(t *testing.T) {
	m := &PartitionManager{}

	month, err := m.parsePartitionMonth("ml_order_events_y2026m08", "ml_order_events")
	if err != nil {
		t.Fatalf("解析分区名失败: %v", err)
	}
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !month.Equal(want) {
		t.Errorf("期望 %v，实际 %v", want, month)
	}

	if _, err := m.parsePartitionMonth("ml_order_events_bogus", "ml_order_events"); err == nil {
		t.Error("非法分区名应当报错")
	}
}
