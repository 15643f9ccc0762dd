package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"echelon/backend/config"
	"echelon/backend/pkg/database"
	applogger "echelon/backend/pkg/logger"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移后退出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("db.driver=%s 无需迁移", cfg.Database.Driver)
			}

			logger, err := applogger.NewLogger(&cfg.Log)
			if err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			defer logger.Sync()

			db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
			if err != nil {
				return fmt.Errorf("数据库连接失败: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
			}
			defer sqlDB.Close()

			return database.RunMigrations(sqlDB, logger)
		},
	}
}
