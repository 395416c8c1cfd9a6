package main

import (
	"fmt"
	"os"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/completion"
	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/search"
	"github.com/young1lin/lorph/internal/session"
	"github.com/young1lin/lorph/internal/storage"
	"github.com/young1lin/lorph/internal/transport"
	"github.com/young1lin/lorph/pkg/logger"
)

var (
	Version   = "dev"
	BuildDate = "unknown"
)

var (
	cfgFile string
	model   string
	showVer bool
)

var rootCmd = &cobra.Command{
	Use:   "lorph",
	Short: "Search-augmented chat assistant",
	Long: `Lorph answers questions with a hosted language model. Before answering
it can search the web and an encyclopedia, feed the results to the model
and suggest related questions.

Without a subcommand it starts an interactive chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVer {
			fmt.Printf("lorph %s (built %s)\n", Version, BuildDate)
			return nil
		}
		return chatCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "model to use (overrides config)")
	rootCmd.Flags().BoolVarP(&showVer, "version", "v", false, "show version")

	rootCmd.AddCommand(chatCmd, serveCmd, searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and initializes the logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if model != "" {
		cfg.Completion.DefaultModel = model
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// app holds the wired components shared by the subcommands
type app struct {
	cfg        *config.Config
	transport  *transport.Client
	aggregator *search.Aggregator
	cache      *storage.SearchCache
	session    *session.Session
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:       cfg,
		transport: transport.NewClientFromConfig(&cfg.Transport),
	}

	var opts []search.AggregatorOption
	if cfg.Search.Enabled && cfg.Search.Cache.Enabled {
		cache, err := storage.NewSearchCache(cfg.Search.Cache.Path, time.Duration(cfg.Search.Cache.TTL)*time.Second)
		if err != nil {
			return nil, err
		}
		if n, err := cache.Prune(); err != nil {
			logger.Warn("search cache prune failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("search cache pruned", zap.Int("removed", n))
		}
		a.cache = cache
		opts = append(opts, search.WithCache(cache))
	}
	a.aggregator = search.NewAggregatorFromConfig(&cfg.Search, a.transport, opts...)

	searcher := a.searcher()
	a.session = session.New(
		completion.NewClient(&cfg.Completion, a.transport),
		searcher,
		session.WithModels(cfg.Completion.DefaultModel, cfg.Completion.Models),
	)

	logger.Info("lorph initialized",
		zap.String("version", Version),
		zap.String("model", cfg.Completion.DefaultModel),
		zap.String("endpoint", cfg.Completion.Endpoint),
		zap.Bool("search", searcher != nil),
	)
	return a, nil
}

// searcher returns the aggregator when it can search, nil otherwise
func (a *app) searcher() session.Searcher {
	if a.aggregator.Enabled() {
		return a.aggregator
	}
	return nil
}

func (a *app) Close() {
	a.session.Reset()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Error("failed to close search cache", zap.Error(err))
		}
	}
	logger.Sync()
}
