package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"contentvault/pkg/core"
	"contentvault/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBranchNotFound      = errors.New("branch not found")
	ErrBranchAlreadyExists = errors.New("branch already exists")
	ErrConcurrentUpdate    = errors.New("concurrent update detected (CAS failed)")
	ErrCommitNotFound      = errors.New("commit not found in metadata")
	ErrTreeNotFound        = errors.New("tree not found in metadata")
	ErrLockHeld            = errors.New("path is locked")
	ErrLockNotFound        = errors.New("lock not found")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// 兼容性,处理不同数据库(PG与SQLite)的唯一约束错误
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key value")
}

// -----------------------------------------------------------------------------
// 1. 分支 (Branches)
// -----------------------------------------------------------------------------

func branchFromModel(m *BranchModel) *core.Branch {
	return &core.Branch{
		Name:    m.Name,
		Head:    types.Hash(m.Head),
		Parent:  m.Parent,
		Version: m.Version,
	}
}

// InsertBranch 创建新分支，名字冲突时返回 ErrBranchAlreadyExists
func (r *Repository) InsertBranch(ctx context.Context, b *core.Branch) error {
	model := BranchModel{
		Name:    b.Name,
		Head:    b.Head.String(),
		Parent:  b.Parent,
		Version: 1,
	}
	if err := r.db.GetConn().WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", ErrBranchAlreadyExists, b.Name)
		}
		return fmt.Errorf("failed to create branch: %w", err)
	}
	b.Version = model.Version
	return nil
}

func (r *Repository) ReadBranch(ctx context.Context, name string) (*core.Branch, error) {
	var model BranchModel
	err := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return branchFromModel(&model), nil
}

// UpdateBranch 原子更新分支 (CAS - Compare And Swap)
// b.Version 是调用者之前读到的版本号，成功后自增
func (r *Repository) UpdateBranch(ctx context.Context, b *core.Branch) error {
	// SQL: UPDATE branches SET head = ?, version = version + 1 WHERE name = ? AND version = ?
	result := r.db.GetConn().WithContext(ctx).Model(&BranchModel{}).
		Where("name = ? AND version = ?", b.Name, b.Version).
		Updates(map[string]any{
			"head":       b.Head.String(),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}

	// 影响行数为 0: version 不匹配（被人抢先改了）或分支不存在
	if result.RowsAffected == 0 {
		if _, err := r.ReadBranch(ctx, b.Name); err != nil {
			return err
		}
		return fmt.Errorf("%w: branch %s", ErrConcurrentUpdate, b.Name)
	}
	b.Version++
	return nil
}

func (r *Repository) ListBranches(ctx context.Context) ([]*core.Branch, error) {
	var models []BranchModel
	if err := r.db.GetConn().WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*core.Branch, 0, len(models))
	for i := range models {
		out = append(out, branchFromModel(&models[i]))
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// 2. 提交 (Commits)
// -----------------------------------------------------------------------------

// InsertCommit 幂等写入，ID 已存在时什么都不做
func (r *Repository) InsertCommit(ctx context.Context, c *core.Commit) error {
	parentsJSON, err := json.Marshal(c.Parents)
	if err != nil {
		return fmt.Errorf("failed to marshal parents: %w", err)
	}
	changesJSON, err := json.Marshal(c.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	model := CommitModel{
		ID:        c.ID.String(),
		Owner:     c.Owner,
		Message:   c.Message,
		Timestamp: c.Timestamp,
		RootHash:  c.RootHash.String(),
		Parents:   datatypes.JSON(parentsJSON),
		Changes:   datatypes.JSON(changesJSON),
		CreatedAt: time.Unix(0, c.Timestamp),
	}

	err = r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to insert commit: %w", err)
	}
	return nil
}

func commitFromModel(m *CommitModel) (*core.Commit, error) {
	c := &core.Commit{
		ID:        types.Hash(m.ID),
		Owner:     m.Owner,
		Message:   m.Message,
		RootHash:  types.Hash(m.RootHash),
		Timestamp: m.Timestamp,
	}
	if len(m.Parents) > 0 {
		if err := json.Unmarshal(m.Parents, &c.Parents); err != nil {
			return nil, fmt.Errorf("corrupted parents of commit %s: %w", m.ID, err)
		}
	}
	if len(m.Changes) > 0 {
		if err := json.Unmarshal(m.Changes, &c.Changes); err != nil {
			return nil, fmt.Errorf("corrupted changes of commit %s: %w", m.ID, err)
		}
	}
	return c, nil
}

func (r *Repository) ReadCommit(ctx context.Context, id types.Hash) (*core.Commit, error) {
	var model CommitModel
	err := r.db.GetConn().WithContext(ctx).
		Where("id = ?", id.String()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return commitFromModel(&model)
}

// ListCommits 沿第一父节点从 from 往回走，depth <= 0 表示走到根
func (r *Repository) ListCommits(ctx context.Context, from types.Hash, depth int) ([]*core.Commit, error) {
	var out []*core.Commit
	next := from
	for !next.IsZero() && (depth <= 0 || len(out) < depth) {
		c, err := r.ReadCommit(ctx, next)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		next, _ = c.FirstParent()
	}
	return out, nil
}

// FindCommitsByOwner 按时间倒序返回某个作者的提交
func (r *Repository) FindCommitsByOwner(ctx context.Context, owner string, limit int) ([]*core.Commit, error) {
	var models []CommitModel
	err := r.db.GetConn().WithContext(ctx).
		Where("owner = ?", owner).
		Order("timestamp DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*core.Commit, 0, len(models))
	for i := range models {
		c, err := commitFromModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// 3. 目录树 (Trees)
// -----------------------------------------------------------------------------

// SaveTree 以 hash 为键保存目录树，重复保存是幂等的
func (r *Repository) SaveTree(ctx context.Context, hash types.Hash, tree *core.Tree) error {
	data, err := tree.Encode()
	if err != nil {
		return err
	}
	err = r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).
		Create(&TreeModel{Hash: hash.String(), Data: data}).Error
	if err != nil {
		return fmt.Errorf("failed to save tree %s: %w", hash, err)
	}
	return nil
}

func (r *Repository) ReadTree(ctx context.Context, hash types.Hash) (*core.Tree, error) {
	var model TreeModel
	err := r.db.GetConn().WithContext(ctx).
		Where("hash = ?", hash.String()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	return core.DecodeTree(model.Data)
}

// -----------------------------------------------------------------------------
// 4. 锁 (Locks)
// -----------------------------------------------------------------------------

type Lock struct {
	Domain    string
	Path      types.CanonicalPath
	Owner     string
	Workspace string
}

// AcquireLock 同一个 workspace 重复加锁是幂等的
func (r *Repository) AcquireLock(ctx context.Context, l Lock) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LockModel
		err := tx.Where("domain = ? AND path = ?", l.Domain, l.Path.String()).First(&existing).Error
		if err == nil {
			if existing.Workspace == l.Workspace {
				return nil
			}
			return fmt.Errorf("%w: %s (held by %s)", ErrLockHeld, l.Path, existing.Owner)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = tx.Create(&LockModel{
			Domain:    l.Domain,
			Path:      l.Path.String(),
			Owner:     l.Owner,
			Workspace: l.Workspace,
		}).Error
		if err != nil && isDuplicate(err) {
			return fmt.Errorf("%w: %s", ErrLockHeld, l.Path)
		}
		return err
	})
}

// ReleaseLock 只允许持有者释放
func (r *Repository) ReleaseLock(ctx context.Context, domain string, path types.CanonicalPath, workspace string) error {
	result := r.db.GetConn().WithContext(ctx).
		Where("domain = ? AND path = ? AND workspace = ?", domain, path.String(), workspace).
		Delete(&LockModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrLockNotFound, path)
	}
	return nil
}

func (r *Repository) ListLocks(ctx context.Context, domain string) ([]Lock, error) {
	var models []LockModel
	if err := r.db.GetConn().WithContext(ctx).Where("domain = ?", domain).Order("path").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Lock, 0, len(models))
	for _, m := range models {
		out = append(out, Lock{
			Domain:    m.Domain,
			Path:      types.CanonicalPath(m.Path),
			Owner:     m.Owner,
			Workspace: m.Workspace,
		})
	}
	return out, nil
}
