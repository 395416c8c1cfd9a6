package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	errors "github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"

	"github.com/young1lin/lorph/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one aggregated web search and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.aggregator.Enabled() {
			return errors.New("search is disabled or no source is available")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		query := strings.Join(args, " ")
		fmt.Println(search.FormatResults(query, a.aggregator.Search(ctx, query)))
		return nil
	},
}
