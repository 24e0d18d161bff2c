package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tcfw/tributary/internal/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "tributary",
		Short: "permissioned BFT ledger node",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ReadConfig()
		},
	}
)

func Execute() error {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase verbosity")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	rootCmd.PersistentFlags().String("api-addr", "", "control api address")
	viper.BindPFlag(config.Cfg_api_addr, rootCmd.PersistentFlags().Lookup("api-addr"))

	regCommands()

	return rootCmd.Execute()
}

func waitExit(ctx context.Context) <-chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	return sigs
}
