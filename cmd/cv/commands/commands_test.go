package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig 让两个工作区共享同一个仓库和对象目录
func writeConfig(t *testing.T) string {
	t.Helper()
	shared := t.TempDir()
	cfg := fmt.Sprintf(`log_level: none
user:
  name: cli-tester
repository:
  driver: sqlite
  path: %s
storage:
  type: local
  path: %s
`, filepath.Join(shared, "repository.db"), filepath.Join(shared, "objects"))
	path := filepath.Join(shared, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func run(t *testing.T, cfg string, args ...string) error {
	t.Helper()
	mergeAbort = false
	commitMsg = ""
	rootCmd.SetArgs(append([]string{"--config", cfg}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

func TestCLIWorkflow(t *testing.T) {
	cfg := writeConfig(t)
	dirA, dirB := t.TempDir(), t.TempDir()

	// 工作区 A 提交一个文件
	t.Chdir(dirA)
	require.NoError(t, run(t, cfg, "init"))
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "data.txt"), []byte("v1"), 0644))
	require.NoError(t, run(t, cfg, "add", "data.txt"))
	require.NoError(t, run(t, cfg, "status"))
	require.NoError(t, run(t, cfg, "commit", "-m", "first"))
	assert.Error(t, run(t, cfg, "commit"), "empty message must be rejected")

	// 工作区 B 检出同一分支
	t.Chdir(dirB)
	require.NoError(t, run(t, cfg, "init"))
	data, err := os.ReadFile(filepath.Join(dirB, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	// 在 feature 分支上修改，然后快进合并回 main
	require.NoError(t, run(t, cfg, "branch", "feature"))
	require.NoError(t, run(t, cfg, "switch", "feature"))
	require.NoError(t, run(t, cfg, "edit", "data.txt"))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "data.txt"), []byte("v2"), 0644))
	require.NoError(t, run(t, cfg, "commit", "-m", "second"))

	require.NoError(t, run(t, cfg, "switch", "main"))
	data, err = os.ReadFile(filepath.Join(dirB, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	require.NoError(t, run(t, cfg, "merge", "feature"))
	data, err = os.ReadFile(filepath.Join(dirB, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	require.NoError(t, run(t, cfg, "log", "-n", "1"))
	require.NoError(t, run(t, cfg, "ls"))

	// A 落后于 main，sync 之后拿到新内容
	t.Chdir(dirA)
	require.NoError(t, run(t, cfg, "sync"))
	data, err = os.ReadFile(filepath.Join(dirA, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestCommandsRequireWorkspace(t *testing.T) {
	cfg := writeConfig(t)
	t.Chdir(t.TempDir())
	assert.Error(t, run(t, cfg, "status"))
}
