// Package main is the kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
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
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "import":
		runImport()
	case "delete":
		runDelete()
	case "watch":
		runWatch()
	case "cache":
		runCache()
	case "status":
		runStatus()
	case "doctor":
		runDoctor()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// app is a loaded config plus its logger and components, for commands that
// work on local storage.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	comps  *Components
}

func (a *app) close() {
	a.comps.Close()
	_ = a.logger.Sync()
}

func mustOpenApp(ctx context.Context, configPath string, debugFlag bool) *app {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	comps, err := initializeComponents(ctx, cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return &app{cfg: cfg, logger: logger, comps: comps}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := mustOpenApp(ctx, *configPath, *debug)
	defer a.close()
	cfg, logger := a.cfg, a.logger

	if a.comps.Synthesizer != nil {
		go warnOnRejectedCredentials(ctx, a)
	}

	if len(cfg.Import.Directories) > 0 {
		w := watcher.New(
			cfg.Import.Directories,
			cfg.Import.RecursiveOrDefault(),
			a.comps.Indexer,
			watcher.WithFilter(a.comps.Indexer.Accepts),
			watcher.WithLogger(logger),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go syncImportDirectories(ctx, a)
	}

	srv := server.NewServer(server.Deps{
		Answers: a.comps.Answers,
		Indexer: a.comps.Indexer,
		Store:   a.comps.Storage,
		Index:   a.comps.Index,
		Cache:   a.comps.Cache,
		Config:  cfg,
		Logger:  logger,
	})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	if cfg.Cache.EvictOnShutdownOrDefault() {
		if _, err := a.comps.Cache.EvictOlderThan(shutdownCtx, cfg.Cache.RetentionDays); err != nil {
			logger.Warn("cache eviction on shutdown failed", zap.Error(err))
		}
	}
}

// warnOnRejectedCredentials logs when the synthesis provider refuses the
// configured key, since every answer would then be a fallback.
func warnOnRejectedCredentials(ctx context.Context, a *app) {
	err := checkSynthesisCredentials(ctx, a.comps.Synthesizer)
	switch {
	case err == nil:
		a.logger.Info("synthesis credentials accepted", zap.String("provider", a.comps.Synthesizer.Name()))
	case errors.Is(err, llm.ErrCheckUnsupported), errors.Is(err, context.Canceled):
	default:
		a.logger.Warn("synthesis credential check failed; answers will use the fallback summary",
			zap.String("provider", a.comps.Synthesizer.Name()), zap.Error(err))
	}
}

// syncImportDirectories imports what the import directories already hold.
func syncImportDirectories(ctx context.Context, a *app) {
	for _, dir := range a.cfg.Import.Directories {
		n, err := a.comps.Indexer.IndexDirectory(ctx, dir, a.cfg.Import.RecursiveOrDefault(), nil)
		if err != nil {
			a.logger.Warn("import directory sync failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		a.logger.Info("import directory synced", zap.String("dir", dir), zap.Int("items", n))
	}
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse sees them. Go's flag
// package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = always answer directly from local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	if *serverURL != "" {
		resp, err := askViaHTTP(*serverURL, query)
		var apiErr *apiError
		switch {
		case err == nil:
			writeAnswer(resp, format)
			return
		case errors.As(err, &apiErr):
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		// Server not reachable: answer from local storage instead.
	}

	ctx := context.Background()
	a := mustOpenApp(ctx, *configPath, false)
	defer a.close()
	resp, err := a.comps.Answers.Ask(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	writeAnswer(resp, format)
}

func writeAnswer(resp *models.AskResponse, format cli.OutputFormat) {
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// apiError is a non-2xx reply from a running server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func askViaHTTP(serverURL string, query string) (*models.AskResponse, error) {
	body, err := json.Marshal(models.AskRequest{Query: query})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	var out models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &apiError{Status: resp.StatusCode, Message: msg}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae import [flags] <file-or-directory>...")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a := mustOpenApp(ctx, *configPath, false)
	defer a.close()

	failed := false
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stat %s: %v\n", path, err)
			failed = true
			continue
		}
		if !info.IsDir() {
			n, err := a.comps.Indexer.IndexFile(ctx, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Import of %s failed: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("Imported %d item(s) from %s\n", n, path)
			continue
		}

		files, err := a.comps.Indexer.ListFiles(path, *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Import of %s failed: %v\n", path, err)
			failed = true
			continue
		}
		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Importing "+filepath.Base(path)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		n, err := a.comps.Indexer.IndexDirectory(ctx, path, *recursive, func(string, error) {
			_ = bar.Add(1)
		})
		_ = bar.Finish()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Import of %s finished with errors: %v\n", path, err)
			failed = true
		}
		fmt.Printf("Imported %d item(s) from %d file(s) in %s\n", n, len(files), path)
	}
	if failed {
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	byFile := fs.Bool("file", false, "treat arguments as imported file paths instead of item ids")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <item-id | -file path>...")
		os.Exit(1)
	}

	ctx := context.Background()
	a := mustOpenApp(ctx, *configPath, false)
	defer a.close()

	for _, arg := range fs.Args() {
		if *byFile {
			n, err := a.comps.Indexer.DeleteFile(ctx, arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Deleted %d item(s) imported from %s\n", n, arg)
			continue
		}
		if err := a.comps.Indexer.DeleteItem(ctx, arg); err != nil {
			fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Item deleted: %s\n", arg)
	}
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a := mustOpenApp(ctx, *configPath, *debug)
	defer a.close()

	dirs := fs.Args()
	if len(dirs) == 0 {
		dirs = a.cfg.Import.Directories
	}
	if len(dirs) == 0 {
		fmt.Println("Usage: kotae watch [flags] [directory...]  (defaults to import.directories)")
		os.Exit(1)
	}
	a.cfg.Import.Directories = dirs

	w := watcher.New(
		dirs,
		a.cfg.Import.RecursiveOrDefault(),
		a.comps.Indexer,
		watcher.WithFilter(a.comps.Indexer.Accepts),
		watcher.WithLogger(a.logger),
	)
	if err := w.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start watcher: %v\n", err)
		os.Exit(1)
	}
	syncImportDirectories(ctx, a)
	fmt.Printf("Watching %s (Ctrl+C to stop)\n", strings.Join(dirs, ", "))
	<-w.Done()
}

func runCache() {
	if len(os.Args) < 3 {
		printCacheUsage()
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("cache "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	days := fs.Int("days", -1, "evict entries older than this many days (default: cache.retention_days)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[3:])
	format := parseFormat(*outputFormat)

	ctx := context.Background()
	a := mustOpenApp(ctx, *configPath, false)
	defer a.close()
	c := a.comps.Cache

	switch sub {
	case "stats":
		stats, err := c.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cache stats failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteCacheStats(os.Stdout, stats, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "clear":
		n, err := c.Clear(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cache clear failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cleared %d cached answer(s)\n", n)
	case "evict":
		d := *days
		if d < 0 {
			d = a.cfg.Cache.RetentionDays
		}
		n, err := c.EvictOlderThan(ctx, d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cache eviction failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Evicted %d cached answer(s) older than %d day(s)\n", n, d)
	default:
		fmt.Printf("Unknown cache subcommand: %s\n", sub)
		printCacheUsage()
		os.Exit(1)
	}
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file to create")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*configPath, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *configPath)
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return config.Save(path, cfg)
}

func printCacheUsage() {
	fmt.Println("Usage: kotae cache <stats|clear|evict> [flags]")
	fmt.Println("  kotae cache stats              Show cache statistics")
	fmt.Println("  kotae cache clear              Delete every cached answer")
	fmt.Println("  kotae cache evict [--days N]   Delete answers older than N days")
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var st *server.Status
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		st = res
	} else {
		ctx := context.Background()
		a := mustOpenApp(ctx, *configPath, false)
		defer a.close()
		res, err := server.CollectStatus(ctx, a.comps.Storage, a.comps.Index, a.comps.Cache, a.cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		st = res
	}

	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	writeStatusText(os.Stdout, st)
}

func writeStatusText(w io.Writer, st *server.Status) {
	fmt.Fprintf(w, "items:              %d\n", st.Items)
	types := make([]string, 0, len(st.ItemsByType))
	for typ := range st.ItemsByType {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		fmt.Fprintf(w, "  %-16s  %d\n", typ, st.ItemsByType[typ])
	}
	if st.IndexDocuments != nil {
		fmt.Fprintf(w, "index_documents:    %d\n", *st.IndexDocuments)
	}
	if st.Cache != nil {
		fmt.Fprintf(w, "cache:              %s, %d entries, %d hits\n", st.Cache.Backend, st.Cache.Entries, st.Cache.TotalHits)
	}
	if st.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage:         %s\n", cli.FormatBytes(*st.DiskUsageBytes))
	}
	fmt.Fprintf(w, "permitted_types:    %s\n", strings.Join(st.PermittedTypes, ", "))
	fmt.Fprintf(w, "premium:            %t\n", st.Premium)
	fmt.Fprintf(w, "synthesis:          %s\n", st.Synthesis)
}

func statusViaHTTP(serverURL string) (*server.Status, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	var st server.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &st, nil
}

func printUsage() {
	fmt.Println(`kotae - answers questions from your site content

Usage:
  kotae server [flags]                 Start the HTTP server
  kotae ask [flags] <question>         Ask a question
  kotae import [flags] <path>...       Import files or directories
  kotae delete [flags] <id>...         Delete content items
  kotae watch [flags] [dir...]         Import and follow directories
  kotae cache <stats|clear|evict>      Manage the answer cache
  kotae status [flags]                 Show content, index and cache status
  kotae doctor [flags]                 Check storage, cache and synthesis setup
  kotae init [--config path]           Write a config file with default settings
  kotae version                        Show version
  kotae help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml,
                     or ./config.yaml when present)

Ask Flags:
  --server string    Server URL (default: http://localhost:8080). Falls back to
                     local storage when the server is not reachable; use --server ""
                     to always answer locally.
  --output string    Output format: text or json (default: text)

Import Flags:
  --recursive        Descend into subdirectories (default: true)

Delete Flags:
  --file             Arguments are imported file paths, not item ids

Cache Flags:
  --days int         Age threshold for evict (default: cache.retention_days)
  --output string    Output format for stats: text or json

Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for local storage.
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae ask what is your return policy
  kotae ask --output json "do you ship abroad?"
  kotae import ./content
  kotae delete page-42
  kotae delete --file ./content/about.md
  kotae cache evict --days 7
  kotae doctor`)
}
