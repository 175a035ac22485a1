package cmd

import (
	"MagicDJ/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动MagicDJ服务器",
	Long:  `启动MagicDJ语音DJ控制台的HTTP服务器，提供音轨管理、存储和会话API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
