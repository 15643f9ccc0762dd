package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"echelon/backend/config"
	"echelon/backend/pkg/jwt"
)

// newTokenCommand 本地联调用：按当前配置的密钥签发 Access Token
// 生产环境 Token 由外部身份服务签发
func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		userID   string
		username string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "签发本地联调用的 Access Token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			if _, err := uuid.Parse(userID); err != nil {
				return fmt.Errorf("--user 必须为 uuid: %w", err)
			}

			token, err := jwt.NewManager(&cfg.Auth).GenerateAccessToken(userID, username, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", uuid.NewString(), "用户 ID（uuid）")
	cmd.Flags().StringVar(&username, "name", "dev", "用户名")
	cmd.Flags().StringVar(&role, "role", "member", "角色：admin | member")

	return cmd
}
