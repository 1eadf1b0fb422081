package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dashfold/dashfold/internal/audit"
	"github.com/dashfold/dashfold/internal/config"
	"github.com/dashfold/dashfold/internal/registry"
	"github.com/dashfold/dashfold/internal/store"
)

var (
	configPath string
	author     string
	message    string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to dashfold.hcl")
	rootCmd.PersistentFlags().StringVar(&author, "author", "", "Author recorded on store commits")
	rootCmd.PersistentFlags().StringVarP(&message, "message", "m", "", "Message recorded on store commits")
}

var rootCmd = &cobra.Command{
	Use:           "dashfold",
	Short:         "Dashfold: data set definition store and deployment watcher",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// app bundles everything a command needs once the store is open.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	gfs     *store.GitFS
	storage *store.DefStorage
	audit   *audit.Log
	polling time.Duration
}

// openApp loads config, builds the logger, opens the git store and the
// audit log, and seeds the registry from disk.
func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	if err := os.MkdirAll(cfg.StorePath, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", cfg.StorePath, err)
	}
	gfs, err := store.NewGitFS(osfs.New(cfg.StorePath))
	if err != nil {
		return nil, err
	}

	reg := registry.NewMemory()
	auditLog, err := audit.Open(cfg.AuditDB, logger)
	if err != nil {
		return nil, err
	}
	reg.AddListener(auditLog)

	storage := store.New(reg, gfs, logger, cfg.MaxCSVLength)
	if err := storage.Init(); err != nil {
		auditLog.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     logger,
		gfs:     gfs,
		storage: storage,
		audit:   auditLog,
		polling: time.Duration(cfg.PollingMs) * time.Millisecond,
	}, nil
}

func (a *app) close() {
	a.audit.Close()
	_ = a.log.Sync()
}
