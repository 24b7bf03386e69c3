package meta

import (
	"time"

	"gorm.io/datatypes"
)

// BranchModel 存储分支指针
type BranchModel struct {
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// Head 指向当前的 Commit ID
	Head string `gorm:"type:char(64);not null"`

	// Parent 是创建该分支时所在的分支
	Parent string `gorm:"type:varchar(255)"`

	// Version 用于乐观锁并发控制 (CAS)
	// 每次更新时 +1，防止并发覆盖
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

func (BranchModel) TableName() string {
	return "branches"
}

// CommitModel 是 core.Commit 在关系型数据库中的投影
type CommitModel struct {
	ID string `gorm:"primaryKey;type:char(64)"`

	Owner     string `gorm:"index;type:varchar(100)"`
	Message   string `gorm:"type:text"`
	Timestamp int64  `gorm:"index"`

	RootHash string `gorm:"type:char(64);not null"`

	// Parents: ["hash1", "hash2"]，合并提交有多个父节点
	Parents datatypes.JSON

	// Changes: 本次提交的文件级变化
	Changes datatypes.JSON

	CreatedAt time.Time
}

func (CommitModel) TableName() string {
	return "commits"
}

// TreeModel 保存规范化 CBOR 编码的目录树
type TreeModel struct {
	Hash string `gorm:"primaryKey;type:char(64)"`
	Data []byte `gorm:"not null"`
}

func (TreeModel) TableName() string {
	return "trees"
}

// LockModel 是 (Domain, Path) 上的独占锁
// Domain 来自工作区的 lock_domain
type LockModel struct {
	Domain    string `gorm:"primaryKey;type:varchar(255)"`
	Path      string `gorm:"primaryKey;type:varchar(1024)"`
	Owner     string `gorm:"type:varchar(100);not null"`
	Workspace string `gorm:"type:varchar(64)"`
	CreatedAt time.Time
}

func (LockModel) TableName() string {
	return "locks"
}
