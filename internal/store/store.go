// Package store 用 Gorm + SQLite 持久化对比历史。
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"logdelta/internal/compare"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ComparisonRun 对应 comparison_runs 表的一行。
// 数值序列与匹配行以 JSON 存储，均值/差值可空（对应引擎的 undefined）。
type ComparisonRun struct {
	ID          string `gorm:"primaryKey"`
	MetricID    string `gorm:"index;not null"`
	MetricLabel string `gorm:"not null"`
	Token       string `gorm:"not null"`

	SourceA string
	CountA  int
	MeanA   *float64
	ValuesA datatypes.JSON
	LinesA  datatypes.JSON

	SourceB string
	CountB  int
	MeanB   *float64
	ValuesB datatypes.JSON
	LinesB  datatypes.JSON

	DeltaPercent *float64
	Warning      string

	CreatedAt time.Time `gorm:"index"`
}

// RunStore 管理 comparison_runs 表。
type RunStore struct {
	db *gorm.DB
}

// NewRunStore 打开（必要时创建）SQLite 库并迁移表结构。
func NewRunStore(path string) (*RunStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ComparisonRun{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &RunStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *RunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertComparison 把一次对比结果写成一条 run 记录，返回记录 ID。
func (s *RunStore) InsertComparison(ctx context.Context, cmp compare.Comparison) (string, error) {
	row := ComparisonRun{
		ID:           uuid.NewString(),
		MetricID:     cmp.MetricID,
		MetricLabel:  cmp.MetricLabel,
		Token:        cmp.Token,
		SourceA:      cmp.A.Source,
		CountA:       cmp.A.Count,
		MeanA:        cmp.A.Mean,
		SourceB:      cmp.B.Source,
		CountB:       cmp.B.Count,
		MeanB:        cmp.B.Mean,
		DeltaPercent: cmp.DeltaPercent,
		Warning:      cmp.Warning,
		CreatedAt:    time.Now(),
	}
	var err error
	if row.ValuesA, err = marshalJSON(cmp.A.Values); err != nil {
		return "", err
	}
	if row.LinesA, err = marshalJSON(cmp.A.Lines); err != nil {
		return "", err
	}
	if row.ValuesB, err = marshalJSON(cmp.B.Values); err != nil {
		return "", err
	}
	if row.LinesB, err = marshalJSON(cmp.B.Lines); err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("insert comparison run failed: %w", err)
	}
	return row.ID, nil
}

// ListRuns 返回最近的 run 记录，按创建时间倒序。
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]ComparisonRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []ComparisonRun
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list comparison runs failed: %w", err)
	}
	return rows, nil
}

// GetRun 按 ID 取单条 run 记录。
func (s *RunStore) GetRun(ctx context.Context, id string) (ComparisonRun, error) {
	var row ComparisonRun
	err := s.db.WithContext(ctx).First(&row, "id = ?", strings.TrimSpace(id)).Error
	if err != nil {
		return ComparisonRun{}, fmt.Errorf("comparison run %s not found: %w", id, err)
	}
	return row, nil
}

// Comparison 把存储行还原成引擎结果，供图表端点复用。
func (r ComparisonRun) Comparison() (compare.Comparison, error) {
	cmp := compare.Comparison{
		MetricID:     r.MetricID,
		MetricLabel:  r.MetricLabel,
		Token:        r.Token,
		DeltaPercent: r.DeltaPercent,
		Warning:      r.Warning,
		A: compare.Aggregate{
			Source: r.SourceA,
			Count:  r.CountA,
			Mean:   r.MeanA,
		},
		B: compare.Aggregate{
			Source: r.SourceB,
			Count:  r.CountB,
			Mean:   r.MeanB,
		},
	}
	if err := unmarshalJSON(r.ValuesA, &cmp.A.Values); err != nil {
		return compare.Comparison{}, err
	}
	if err := unmarshalJSON(r.LinesA, &cmp.A.Lines); err != nil {
		return compare.Comparison{}, err
	}
	if err := unmarshalJSON(r.ValuesB, &cmp.B.Values); err != nil {
		return compare.Comparison{}, err
	}
	if err := unmarshalJSON(r.LinesB, &cmp.B.Lines); err != nil {
		return compare.Comparison{}, err
	}
	return cmp, nil
}

func marshalJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func unmarshalJSON[T any](raw datatypes.JSON, dst *T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
