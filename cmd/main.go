package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slw-proton/litellm-adpter-dify/internal/config"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

var (
	configPath string
	envFile    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "litellm-adapter",
		Short:         "OpenAI 兼容的 Dify 工作流适配服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "额外加载的 .env 文件")

	root.AddCommand(newServeCmd(), newWorkflowCmd(), newImageCmd())
	return root
}

// loadConfig 先加载 .env 再读取配置并初始化日志
func loadConfig() (config.Config, error) {
	config.LoadEnvFiles(envFile)

	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.LoggerOptions()); err != nil {
		return config.Config{}, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
