package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"callrec/internal/domain"
	"callrec/internal/infra/grant"
)

var (
	grantSubject string
	grantTTL     time.Duration
	grantUsages  []string
)

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Issue a capture grant token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Grant.Secret == "" {
			return errors.New("grant.secret must be configured to issue grants")
		}

		ttl := grantTTL
		if ttl == 0 {
			ttl = cfg.Grant.TTLDuration()
		}

		usages := make([]domain.Usage, 0, len(grantUsages))
		for _, u := range grantUsages {
			usages = append(usages, domain.Usage(u))
		}
		if len(usages) == 0 {
			usages = cfg.Capture.DomainUsages()
		}

		token, err := grant.NewIssuer(cfg.Grant.Secret, cfg.Grant.Issuer).Issue(grantSubject, usages, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	grantCmd.Flags().StringVar(&grantSubject, "subject", "local", "who the grant is issued to")
	grantCmd.Flags().DurationVar(&grantTTL, "ttl", 0, "grant lifetime (defaults to grant.ttl)")
	grantCmd.Flags().StringSliceVar(&grantUsages, "usage", nil, "playback usages to permit (defaults to capture.usages)")
}
