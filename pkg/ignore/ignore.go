package ignore

import (
	"io/fs"
	"os"
	"path/filepath"

	"contentvault/pkg/types"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是用户自定义忽略规则所在的文件
const FileName = ".cvignore"

// 这些规则强制生效
var defaultRules = []string{
	".cv",  // 工作区元数据目录
	".git", // 忽略 Git 仓库数据

	".env", // 防止环境变量文件泄露

	".DS_Store", // macOS
	"Thumbs.db", // Windows
}

// Matcher 判断一个工作区路径是否应该被忽略
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 合并默认规则和 rootPath/.cvignore
func NewMatcher(rootPath string) (*Matcher, error) {
	ignoreFilePath := filepath.Join(rootPath, FileName)

	if _, err := os.Stat(ignoreFilePath); err != nil {
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(defaultRules...)}, nil
	}
	ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFilePath, defaultRules...)
	if err != nil {
		return nil, err
	}
	return &Matcher{ignorer: ignorer}, nil
}

// Matches path 是相对于工作区根目录的 slash 路径，true 表示应该忽略
func (m *Matcher) Matches(path types.CanonicalPath) bool {
	if m.ignorer == nil || path.IsRoot() {
		return false
	}
	return m.ignorer.MatchesPath(path.String())
}

// Walk 递归遍历 root 下的 dir，对每个未被忽略的普通文件调用 fn
// 被忽略的目录整体跳过
func (m *Matcher) Walk(root string, dir types.CanonicalPath, fn func(path types.CanonicalPath, info fs.FileInfo) error) error {
	return filepath.Walk(dir.ToOS(root), func(osPath string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, osPath)
		if err != nil {
			return err
		}
		p := types.NewCanonicalPath(rel)
		if m.Matches(p) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return fn(p, info)
	})
}
