// aractl 运维命令行：手动索引、清理、重算问题出现时间、签发令牌和生成API密钥
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootFlags struct {
	configPath string
	env        string
}

var rootCmd = &cobra.Command{
	Use:   "aractl",
	Short: "ARA master operations",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "config directory (default configs or ARA_CONFIG_PATH)")
	pf.StringVar(&rootFlags.env, "env", "", "environment (dev, test, prod), defaults to ARA_ENV")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(refreshDefectsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashKeyCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
