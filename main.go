package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tarefasplus/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "tarefas",
		Short:         "TarefasPlus - live synced task list",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", os.Getenv("TAREFAS_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().String("user", os.Getenv("TAREFAS_USER"), "Owner email for CLI commands")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(shareCmd())
	rootCmd.AddCommand(initStorageCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}

// loadSharedApp is loadApp for commands that read or write stored tasks. The
// memory backend dies with the process, so they refuse it.
func loadSharedApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := requireSharedStore(cfg); err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func requireSharedStore(cfg config.Config) error {
	if cfg.Storage.Backend == config.BackendMemory {
		return fmt.Errorf("%s backend keeps tasks only for one process; set STORAGE_BACKEND=%s or run serve", config.BackendMemory, config.BackendAzure)
	}
	return nil
}
