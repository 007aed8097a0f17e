package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mmynk/settlex/internal/config"
	"github.com/mmynk/settlex/pkg/logging"
)

var Version = "dev"

// app carries configuration shared by all subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:           "settlex",
		Short:         "SettleX - shared expense payment ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "path to a YAML config file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (tint, json)")
	flags.String("server", "", "server URL for client commands")
	flags.String("token", "", "bearer token for client commands")
	bindFlags(a.v, flags, map[string]string{
		"log_level":  "log-level",
		"log_format": "log-format",
		"server_url": "server",
		"token":      "token",
	})

	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(recordCmd(a))
	rootCmd.AddCommand(paymentsCmd(a))
	rootCmd.AddCommand(isPaidCmd(a))
	rootCmd.AddCommand(watchCmd(a))
	rootCmd.AddCommand(tokenCmd(a))

	return rootCmd
}
