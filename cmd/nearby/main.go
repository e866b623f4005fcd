// Package main is the nearby CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/nearby/internal/cli"
	"github.com/hyperjump/nearby/internal/config"
	"github.com/hyperjump/nearby/internal/mcp"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/server"
	"github.com/hyperjump/nearby/internal/watcher"
	"github.com/hyperjump/nearby/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/nearby/config.yaml"

var (
	configPath string
	debugFlag  bool
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development). When the default file
// does not exist either, built-in defaults are used and the returned path is empty.
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and creates the logger for a command.
func setup(outputs ...string) (*config.Config, string, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if debugFlag {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug, outputs...)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, resolved, logger, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nearby",
		Short:         "Hybrid nearby-user search: location proximity blended with interest similarity",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env from the current directory if present.
			_ = godotenv.Load()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newSearchCmd(),
		newVectorizeCmd(),
		newImportCmd(),
		newSimilarityCmd(),
		newStatsCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nearby version %s\n", version)
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and profile directory watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedConfigPath, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			logger.Info("config loaded",
				zap.String("config_path", resolvedConfigPath),
				zap.Bool("debug", cfg.Debug),
			)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			if cfg.Vectorize.OnStart {
				go vectorizeAllOnStart(ctx, components, logger)
			}

			watchSvc := watcher.New(components.Importer, cfg.Watch.Directories, cfg.Watch.Extensions,
				watcher.WithLogger(logger),
				watcher.WithDebounce(cfg.Watch.Debounce),
				watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
			)
			if err := watchSvc.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			defer watchSvc.Stop()
			watchSvc.SyncExistingFiles()

			srv := server.NewServer(components.Engine, components.Vectorizer, components.Store, cfg, logger,
				server.WithWatch(watchSvc, resolvedConfigPath),
				server.WithMetrics(components.Metrics),
			)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sigChan:
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			}

			logger.Info("Shutting down...")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func vectorizeAllOnStart(ctx context.Context, c *Components, logger *zap.Logger) {
	ids, err := c.Store.ListProfileIDs(ctx)
	if err != nil {
		logger.Warn("startup vectorization skipped", zap.Error(err))
		return
	}
	res, err := c.Vectorizer.VectorizeAll(ctx, ids)
	if err != nil {
		logger.Warn("startup vectorization failed", zap.Error(err))
		return
	}
	logger.Info("startup vectorization done",
		zap.Int("vectorized", res.Vectorized),
		zap.Int("failed", len(res.Failed)),
	)
}

type searchOptions struct {
	user          string
	mode          string
	radiusKm      float64
	limit         int
	minSimilarity float64
	weight        float64
	output        string
	serverURL     string
}

// buildSearchQuery joins args with spaces and trims surrounding whitespace.
// Multi-word queries work with or without quotes.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// query builds the search request; weightSet and minSimSet report whether the
// corresponding flags were given, so config defaults apply otherwise.
func (o *searchOptions) query(args []string, weightSet, minSimSet bool) (*models.SearchQuery, error) {
	mode, err := models.ParseSearchMode(o.mode)
	if err != nil {
		return nil, err
	}
	q := &models.SearchQuery{
		RequesterID:   o.user,
		Mode:          mode,
		SemanticQuery: buildSearchQuery(args),
		RadiusKm:      o.radiusKm,
		MaxResults:    o.limit,
	}
	if weightSet {
		w := o.weight
		q.LocationWeight = &w
	}
	if minSimSet {
		m := o.minSimilarity
		q.MinSimilarity = &m
	}
	return q, nil
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search [flags] [query]",
		Short: "Find nearby users for a requester",
		Long: `Find nearby users for a requester.

The query is all remaining arguments joined by spaces. An empty query searches
for users similar to the requester's own profile.

Modes:
  location   distance only, closest first
  semantic   interest similarity only
  hybrid     weighted blend of both (default)`,
		Example: `  nearby search --user u1 cricket
  nearby search --user u1 --mode location --radius 25
  nearby search --user u1 --weight 0.6 --output json "indian food"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(opts.output)
			if err != nil {
				return err
			}
			q, err := opts.query(args, cmd.Flags().Changed("weight"), cmd.Flags().Changed("min-similarity"))
			if err != nil {
				return err
			}

			var resp *models.SearchResponse
			if opts.serverURL != "" {
				// Use the HTTP API when the server is running (avoids SQLite/Bleve lock conflicts).
				resp, err = searchViaHTTP(opts.serverURL, q)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
			} else {
				cfg, _, logger, err := setup()
				if err != nil {
					return err
				}
				defer logger.Sync()
				components, err := initializeComponents(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer components.Close()
				resp = components.Engine.Search(cmd.Context(), q)
			}
			if err := cli.WriteSearchResults(cmd.OutOrStdout(), resp, format); err != nil {
				return fmt.Errorf("output failed: %w", err)
			}
			if !resp.Success {
				return fmt.Errorf("search failed")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.user, "user", "u", "", "requesting user id (required)")
	f.StringVarP(&opts.mode, "mode", "m", "hybrid", "search mode: location, semantic or hybrid")
	f.Float64VarP(&opts.radiusKm, "radius", "r", 0, "search radius in km (default from config)")
	f.IntVarP(&opts.limit, "limit", "n", 0, "maximum number of results (default from config)")
	f.Float64Var(&opts.minSimilarity, "min-similarity", 0, "minimum semantic similarity (default from config)")
	f.Float64Var(&opts.weight, "weight", 0, "location weight in [0,1] for hybrid mode (default from config)")
	f.StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	f.StringVar(&opts.serverURL, "server", "", "server URL; empty searches the local store directly")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// searchViaHTTP posts q to a running server. Failed searches come back with a
// non-200 status and a SearchResponse body, which is returned as is.
func searchViaHTTP(serverURL string, q *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/nearby", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var response models.SearchResponse
	if err := json.Unmarshal(b, &response); err != nil || (resp.StatusCode != http.StatusOK && response.Error == nil) {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return &response, nil
}

func newVectorizeCmd() *cobra.Command {
	var output string
	var all bool
	cmd := &cobra.Command{
		Use:   "vectorize [user-id...]",
		Short: "Rebuild profile embeddings for the given users (or --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("pass user ids or --all")
			}
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, _, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			components, err := initializeComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			ids := args
			if all {
				if ids, err = components.Store.ListProfileIDs(cmd.Context()); err != nil {
					return err
				}
			}
			res, err := components.Vectorizer.VectorizeAll(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return cli.WriteBulkResult(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "vectorize every stored profile")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newImportCmd() *cobra.Command {
	var eager bool
	cmd := &cobra.Command{
		Use:   "import <file-or-directory>...",
		Short: "Import YAML or JSON profile files into the profile store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cmd.Flags().Changed("eager") {
				cfg.Watch.Eager = eager
			}
			components, err := initializeComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			total := 0
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				var n int
				if info.IsDir() {
					n, err = components.Importer.ImportDirectory(cmd.Context(), path)
				} else {
					n, err = components.Importer.ImportFile(cmd.Context(), path)
				}
				total += n
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d profiles\n", total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&eager, "eager", false, "vectorize imported profiles right away")
	return cmd
}

func newSimilarityCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "similarity <user-a> <user-b>",
		Short: "Show the interest similarity of two users",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, _, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			components, err := initializeComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()
			sim, err := components.Engine.UserSimilarity(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return cli.WriteSimilarity(cmd.OutOrStdout(), sim, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show embedding counts, thresholds and storage footprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, _, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			components, err := initializeComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()
			st, err := components.Engine.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteStatistics(cmd.OutOrStdout(), st, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the search tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol; logs go to stderr.
			cfg, _, logger, err := setup("stderr")
			if err != nil {
				return err
			}
			defer logger.Sync()
			components, err := initializeComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()
			return mcp.NewServer(components.Engine, components.Vectorizer, logger).Serve(cmd.Context())
		},
	}
}
