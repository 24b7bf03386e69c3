// Package app 是整个应用程序的依赖容器，根据配置组装仓库索引、内容存储和工作区
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"contentvault/pkg/config"
	"contentvault/pkg/meta"
	"contentvault/pkg/storage"
	"contentvault/pkg/workspace"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// App 持有所有"单例"服务
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *meta.DB
	Repo    *meta.Repository
	Blobs   storage.Provider
	Metrics *storage.Metrics

	// BaseDir 用于解析配置中的相对路径
	BaseDir string

	closers []func() error
}

// New 组装仓库索引和内容存储
// 它遵循配置，但不知道具体的 CLI 命令
func New(ctx context.Context, cfg *config.Config, baseDir string, logger *zap.Logger, registry prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		BaseDir: baseDir,
	}
	if registry != nil {
		a.Metrics = storage.NewMetrics(registry)
	}

	// 1. 仓库索引
	db, err := meta.NewDB(ctx, a.metaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	a.DB = db
	a.Repo = meta.NewRepository(db)
	a.closers = append(a.closers, db.Close)

	// 2. 内容存储
	built, err := a.BuildProvider(ctx, "storage", cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	a.Blobs = built.Provider
	return a, nil
}

func (a *App) metaConfig() meta.Config {
	r := a.Config.Repository
	return meta.Config{
		Driver:   r.Driver,
		Host:     r.Host,
		Port:     r.Port,
		User:     r.User,
		Password: r.Password,
		DBName:   r.DBName,
		SSLMode:  r.SSLMode,
		Path:     a.resolve(r.Path),
		Debug:    r.Debug,
	}
}

// resolve 把相对路径解析到 BaseDir 下
func (a *App) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.BaseDir, p)
}

// InitWorkspace 在 root 创建工作区
func (a *App) InitWorkspace(ctx context.Context, root, branch string) (*workspace.Workspace, error) {
	return workspace.Init(ctx, root, a.Repo, a.Blobs, workspace.Options{
		Owner:      a.Config.User.Name,
		LockDomain: a.Config.User.LockDomain,
		Branch:     branch,
		Logger:     a.Logger,
	})
}

// OpenWorkspace 从 start 向上查找并打开工作区
func (a *App) OpenWorkspace(start string) (*workspace.Workspace, error) {
	return workspace.Open(start, a.Repo, a.Blobs, a.Logger)
}

// Close 按创建的相反顺序释放资源
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
