// Package refs 记录工作区本地的状态: 当前分支和提交、待提交的合并、待解决的冲突
package refs

import (
	"context"
	"errors"
	"fmt"

	"contentvault/pkg/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	ErrNoHead     = errors.New("workspace has no current branch (not initialized)")
	ErrNotPending = errors.New("path has no pending resolve")
)

// HeadModel 只有一行 (ID = 1)
type HeadModel struct {
	ID     uint   `gorm:"primaryKey"`
	Branch string `gorm:"type:varchar(255);not null"`
	Commit string `gorm:"type:char(64);not null"`
}

func (HeadModel) TableName() string { return "head" }

// PendingMerge 会在下次提交时成为额外的父节点
type PendingMerge struct {
	Branch string `gorm:"primaryKey;type:varchar(255)"`
	Head   string `gorm:"type:char(64);not null"`
}

func (PendingMerge) TableName() string { return "pending_merges" }

// PendingResolve 是合并时两边都修改过的路径
type PendingResolve struct {
	Path         string `gorm:"primaryKey;type:varchar(1024)"`
	SourceBranch string `gorm:"type:varchar(255)"`
	BaseHash     string `gorm:"type:varchar(128)"` // 合并基点上的内容，空表示不存在
	IncomingHash string `gorm:"type:varchar(128)"` // 来源分支上的内容，空表示被删除
}

func (PendingResolve) TableName() string { return "pending_resolves" }

// Manager 负责管理工作区引用
type Manager struct {
	db *gorm.DB
}

// Open 打开 (或创建) path 上的 SQLite 状态库
func Open(path string) (*Manager, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace state %s: %w", path, err)
	}
	return NewManager(db)
}

func NewManager(db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&HeadModel{}, &PendingMerge{}, &PendingResolve{}); err != nil {
		return nil, fmt.Errorf("workspace state migration failed: %w", err)
	}
	return &Manager{db: db}, nil
}

func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Current 返回当前分支和工作区所在的提交
func (m *Manager) Current(ctx context.Context) (string, types.Hash, error) {
	var head HeadModel
	err := m.db.WithContext(ctx).First(&head, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", ErrNoHead
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return head.Branch, types.Hash(head.Commit), nil
}

func setCurrent(tx *gorm.DB, branch string, commit types.Hash) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&HeadModel{ID: 1, Branch: branch, Commit: commit.String()}).Error
}

func (m *Manager) SetCurrent(ctx context.Context, branch string, commit types.Hash) error {
	if err := setCurrent(m.db.WithContext(ctx), branch, commit); err != nil {
		return fmt.Errorf("failed to update HEAD: %w", err)
	}
	return nil
}

// CompleteCommit 移动 HEAD 并清空待提交的合并
func (m *Manager) CompleteCommit(ctx context.Context, branch string, commit types.Hash) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setCurrent(tx, branch, commit); err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&PendingMerge{}).Error
	})
}

// AddPendingMerge 同一个分支再次合并时覆盖其 head
func (m *Manager) AddPendingMerge(ctx context.Context, branch string, head types.Hash) error {
	return m.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&PendingMerge{Branch: branch, Head: head.String()}).Error
}

func (m *Manager) PendingMerges(ctx context.Context) ([]PendingMerge, error) {
	var out []PendingMerge
	err := m.db.WithContext(ctx).Order("branch").Find(&out).Error
	return out, err
}

func (m *Manager) AddPendingResolve(ctx context.Context, r PendingResolve) error {
	return m.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&r).Error
}

func (m *Manager) PendingResolves(ctx context.Context) ([]PendingResolve, error) {
	var out []PendingResolve
	err := m.db.WithContext(ctx).Order("path").Find(&out).Error
	return out, err
}

func (m *Manager) PendingResolve(ctx context.Context, path types.CanonicalPath) (*PendingResolve, error) {
	var r PendingResolve
	err := m.db.WithContext(ctx).Where("path = ?", path.String()).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotPending, path)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkResolved 删除一条待解决记录
func (m *Manager) MarkResolved(ctx context.Context, path types.CanonicalPath) error {
	result := m.db.WithContext(ctx).Where("path = ?", path.String()).Delete(&PendingResolve{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotPending, path)
	}
	return nil
}

// AbortMerge 丢弃全部合并状态
func (m *Manager) AbortMerge(ctx context.Context) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&PendingMerge{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&PendingResolve{}).Error
	})
}
