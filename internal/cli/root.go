// Package cli provides the roomctl commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"room-status-backend/config"
	"room-status-backend/internal/db"
	"room-status-backend/internal/lifecycle"
	"room-status-backend/internal/logging"
	"room-status-backend/internal/metrics"
	"room-status-backend/internal/policy"
	"room-status-backend/internal/shift"
	"room-status-backend/internal/status"
	"room-status-backend/internal/store"
)

// DefaultConfigPath is used when neither --config nor CONFIG_PATH is set.
const DefaultConfigPath = "config.yaml"

// Runtime is what the commands operate on. Store, Engine and Metrics are nil
// when the command did not ask for a database.
type Runtime struct {
	Config  *config.Config
	Logger  *zap.Logger
	Shifts  *shift.Service
	Store   store.Store
	Engine  *lifecycle.Engine
	Metrics *metrics.Engine

	close func() error
}

// Close releases the database connection, if any.
func (rt *Runtime) Close() error {
	if rt.close == nil {
		return nil
	}
	return rt.close()
}

// Opener builds a Runtime from the config file at path.
type Opener func(ctx context.Context, path string, withDB bool) (*Runtime, error)

// LoadConfig reads path, or returns the defaults when the file does not exist.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	return cfg, err
}

// OpenRuntime is the Opener used by the roomctl binary.
func OpenRuntime(ctx context.Context, path string, withDB bool) (*Runtime, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New("warn", "console", "roomctl")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var archiver shift.Archiver
	if cfg.Shift.Archive.Bucket != "" {
		a, err := shift.NewS3Archiver(ctx, cfg.Shift.Archive)
		if err != nil {
			return nil, err
		}
		archiver = a
	}
	shifts, err := shift.NewService(cfg.Shift, archiver, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Logger: logger, Shifts: shifts}
	if !withDB {
		return rt, nil
	}

	dbCfg := cfg.Database
	dbCfg.DSN = shifts.ResolveDSN(cfg.Database.DSN)
	gormDB, err := db.Init(&dbCfg, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}

	rt.Store = store.NewGormStore(gormDB)
	rt.Engine = lifecycle.NewEngine(rt.Store, policy.Default(), logger)
	rt.Metrics = metrics.NewEngine(rt.Store, metrics.WithStuckThreshold(cfg.Metrics.StuckThreshold))
	rt.close = sqlDB.Close
	return rt, nil
}

type runner struct {
	open       Opener
	configPath string
}

func (r *runner) runtime(cmd *cobra.Command, withDB bool) (*Runtime, error) {
	return r.open(cmd.Context(), r.configPath, withDB)
}

// NewRootCmd assembles the roomctl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	r := &runner{open: open}

	rootCmd := &cobra.Command{
		Use:   "roomctl",
		Short: "Manage clinic rooms, shifts and turnaround metrics",
		Long: `roomctl drives the clinic room status service from the command line.
It works directly against the active shift database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = DefaultConfigPath
	}
	rootCmd.PersistentFlags().StringVarP(&r.configPath, "config", "c", defaultPath, "Path to the YAML config file")

	rootCmd.AddCommand(r.roomCmd())
	rootCmd.AddCommand(r.statusCmd())
	rootCmd.AddCommand(r.eventsCmd())
	rootCmd.AddCommand(r.summaryCmd())
	rootCmd.AddCommand(r.qrURLsCmd())
	rootCmd.AddCommand(r.shiftCmd())
	rootCmd.AddCommand(r.exportCmd())

	return rootCmd
}

func colorStatus(s status.Status) string {
	switch s {
	case status.Available:
		return color.New(color.FgHiGreen).Sprint(s)
	case status.Waiting:
		return color.New(color.FgYellow).Sprint(s)
	case status.SeeingProvider:
		return color.New(color.FgHiBlue).Sprint(s)
	case status.NeedsCleaning:
		return color.New(color.FgRed).Sprint(s)
	case status.Cleaning:
		return color.New(color.FgCyan).Sprint(s)
	default:
		return color.New(color.FgHiBlack).Sprint(s)
	}
}

func success(format string, args ...any) string {
	return color.New(color.FgGreen).Sprint("✓ ") + fmt.Sprintf(format, args...)
}

func parseSource(raw string) (status.Source, error) {
	return status.ParseSource(strings.ToLower(strings.TrimSpace(raw)))
}
