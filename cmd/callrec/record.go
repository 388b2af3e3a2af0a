package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"callrec/internal/infra/grant"
	"callrec/internal/observe"
)

var (
	recordGrant    string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one call until interrupted",
	Long: `Record the playback loopback and the microphone until SIGINT/SIGTERM,
the --duration elapses or the capture fails. The grant may also be passed in
the CALLREC_GRANT environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd)
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordGrant, "grant", "", "capture grant token")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "stop after this long (0 waits for a signal)")
}

func runRecord(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log)

	token := recordGrant
	if token == "" {
		token = os.Getenv("CALLREC_GRANT")
	}
	if token == "" {
		return errors.New("a capture grant is required: pass --grant or set CALLREC_GRANT")
	}

	auth, err := grant.NewVerifier(cfg.Grant.Secret, cfg.Grant.Issuer).Verify(token)
	if err != nil {
		return err
	}

	manager, err := buildManager(cfg, observe.DefaultMetrics(), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := manager.Start(ctx, auth)
	if err != nil {
		return err
	}
	logger.Info("recording, press Ctrl+C to stop", "artifact", info.Artifact, "location", info.Location)

	if recordDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	// Wait returns early when the session ends on its own.
	if err := manager.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("capture ended with error", "error", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	st, err := manager.Stop(stopCtx)
	if err != nil {
		return fmt.Errorf("stopping capture: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return err
	}
	if st.LastError != "" {
		return fmt.Errorf("capture failed: %s", st.LastError)
	}
	return nil
}
