package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置并解析为 Config
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) (*Config, error) {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		// 搜索顺序: 当前目录、当前目录下的 .cv、用户主目录下的 .cv
		viper.AddConfigPath(".")
		viper.AddConfigPath(".cv")
		viper.AddConfigPath(filepath.Join(home, ".cv"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 3. 读取环境变量 (CV_REPOSITORY_HOST 等)
	viper.SetEnvPrefix("CV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件，没找到文件时只用默认值和环境变量
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = viper.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("user.name", "contentvault")
	viper.SetDefault("user.lock_domain", "default")

	// 仓库索引默认是工作区里的 SQLite
	viper.SetDefault("repository.driver", "sqlite")
	viper.SetDefault("repository.path", filepath.Join(".cv", "repository.db"))
	viper.SetDefault("repository.host", "localhost")
	viper.SetDefault("repository.port", 5432)
	viper.SetDefault("repository.sslmode", "disable")

	// 内容存储默认是工作区里的本地目录
	viper.SetDefault("storage.type", TypeLocal)
	viper.SetDefault("storage.path", filepath.Join(".cv", "objects"))

	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.metrics_listen", ":9090")
}
