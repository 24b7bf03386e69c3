// Package sqlstore 用关系型数据库 (Postgres / SQLite) 保存别名和 S3 对象索引
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"gorm.io/gorm"
)

// IndexEntry 记录一个内容 ID 对应的对象 Key
type IndexEntry struct {
	ID        string `gorm:"primaryKey;type:varchar(128)"`
	ObjectKey string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (IndexEntry) TableName() string { return "content_index" }

// AliasEntry 是 (KeySpace, Key) -> ContentID 的一次性绑定
type AliasEntry struct {
	KeySpace  string `gorm:"primaryKey;type:varchar(255)"`
	Key       string `gorm:"primaryKey;type:varchar(255)"`
	ContentID string `gorm:"type:varchar(128);not null"`
	CreatedAt time.Time
}

func (AliasEntry) TableName() string { return "content_aliases" }

// Migrate 创建两张表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&IndexEntry{}, &AliasEntry{})
}

// 兼容性,处理不同数据库(PG与SQLite)的唯一约束错误
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key value")
}

type Index struct {
	db *gorm.DB
}

func NewIndex(db *gorm.DB) *Index {
	return &Index{db: db}
}

func (i *Index) Lookup(ctx context.Context, id types.Identifier) (string, error) {
	var entry IndexEntry
	err := i.db.WithContext(ctx).Where("id = ?", id.String()).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", storage.NotFound(id)
	}
	if err != nil {
		return "", fmt.Errorf("index lookup failed: %w", err)
	}
	return entry.ObjectKey, nil
}

func (i *Index) Register(ctx context.Context, id types.Identifier, key string) error {
	err := i.db.WithContext(ctx).Create(&IndexEntry{ID: id.String(), ObjectKey: key}).Error
	if err != nil {
		if isDuplicate(err) {
			return storage.AlreadyExists(id)
		}
		return fmt.Errorf("index register failed: %w", err)
	}
	return nil
}

type AliasProvider struct {
	db *gorm.DB
}

func NewAliasProvider(db *gorm.DB) *AliasProvider {
	return &AliasProvider{db: db}
}

func (a *AliasProvider) ResolveAlias(ctx context.Context, keySpace, key string) (types.Identifier, error) {
	var entry AliasEntry
	err := a.db.WithContext(ctx).
		Where("key_space = ? AND key = ?", keySpace, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Identifier{}, storage.AliasNotFound(keySpace, key)
	}
	if err != nil {
		return types.Identifier{}, fmt.Errorf("resolve alias failed: %w", err)
	}
	return types.ParseIdentifier(entry.ContentID)
}

func (a *AliasProvider) RegisterAlias(ctx context.Context, keySpace, key string, id types.Identifier) error {
	err := a.db.WithContext(ctx).Create(&AliasEntry{
		KeySpace:  keySpace,
		Key:       key,
		ContentID: id.String(),
	}).Error
	if err != nil {
		if isDuplicate(err) {
			return storage.AliasAlreadyExists(keySpace, key)
		}
		return fmt.Errorf("register alias failed: %w", err)
	}
	return nil
}
