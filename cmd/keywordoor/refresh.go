package main

import (
	"context"
	"fmt"

	"github.com/keywordoor/keywordoor/pkg/api/store"
	"github.com/spf13/cobra"
)

var refreshLatestCmd = &cobra.Command{
	Use:   "refresh-latest",
	Short: "Rebuild the keyword latest projection and exit",
	Long: `Recompute the keyword latest projection from the observations
table. The projection is a derived cache; rebuilding it is always safe.`,
	RunE: runRefreshLatest,
}

func init() {
	rootCmd.AddCommand(refreshLatestCmd)
}

func runRefreshLatest(cmd *cobra.Command, args []string) error {
	cfg, err := loadAPIConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	st := store.NewStore(log, &cfg.API.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Store stop error")
		}
	}()

	rows, err := st.RebuildLatest(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding projection: %w", err)
	}

	log.WithField("rows", rows).Info("Projection refreshed")

	return nil
}
