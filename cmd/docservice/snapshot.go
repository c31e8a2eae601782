package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/docservice/internal/config"
	"github.com/hyperengineering/docservice/internal/snapshot"
	"github.com/hyperengineering/docservice/internal/worker"
	"github.com/spf13/cobra"
)

var snapshotWatch bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Snapshot the SQLite document database",
	Long:  "Write a consistent copy of the SQLite database to snapshot.dir and upload it when snapshot.bucket is set. With --watch, repeat every snapshot.interval until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotWatch, "watch", false,
		"Keep running and snapshot every snapshot.interval")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.DriverSQLite {
		return fmt.Errorf("snapshot requires the sqlite driver, configured driver is %q", cfg.Database.Driver)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	uploader, err := snapshot.NewUploader(cfg.Snapshot)
	if err != nil {
		return err
	}
	gen := snapshot.NewGenerator(rt.db, cfg.Database.Path, cfg.Snapshot.Dir, uploader)

	if snapshotWatch {
		interval := time.Duration(cfg.Snapshot.Interval)
		if interval <= 0 {
			return fmt.Errorf("snapshot.interval must be positive, got %s", interval)
		}
		var wg sync.WaitGroup
		startWorker(ctx, &wg, "snapshot", worker.NewSnapshotWorker(gen, interval).Run)
		<-ctx.Done()
		slog.Info("shutdown initiated")
		wg.Wait()
		slog.Info("shutdown complete")
		return nil
	}

	if err := gen.GenerateSnapshot(ctx); err != nil {
		return err
	}

	out := map[string]any{
		"database": gen.Database(),
		"path":     gen.Path(),
	}
	link, expiry, err := uploader.PresignedURL(ctx, gen.Database())
	switch {
	case errors.Is(err, snapshot.ErrNotConfigured):
	case err != nil:
		return err
	default:
		out["url"] = link
		out["expires_at"] = expiry.UTC().Format(time.RFC3339)
	}
	return printJSON(cmd.OutOrStdout(), out)
}
