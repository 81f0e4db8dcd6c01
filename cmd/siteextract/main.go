package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-scripts/siteextract/internal/config"
	"github.com/go-scripts/siteextract/internal/metrics"
	"github.com/go-scripts/siteextract/internal/present"
	"github.com/go-scripts/siteextract/internal/progress"
	"github.com/go-scripts/siteextract/internal/writer"
	"github.com/go-scripts/siteextract/pkg/common"
	"github.com/go-scripts/siteextract/pkg/crawl"
	"github.com/go-scripts/siteextract/ui"
)

// CLIFlags are the command line arguments.
type CLIFlags struct {
	URL         string `arg:"" help:"Seed URL to crawl."`
	Query       string `arg:"" help:"What to extract, in plain language."`
	Depth       *int   `help:"Maximum link depth from the seed (config default 2)." short:"d"`
	Links       *int   `help:"Maximum links followed per page (config default 5)." short:"l"`
	ConfigFile  string `help:"Path to a JSON5 configuration file." name:"config" short:"c" type:"path"`
	Output      string `help:"Directory to write JSON, HTML and CSV results to." short:"o" type:"path"`
	Format      string `help:"Output format." enum:"table,markdown,json,html" default:"table" short:"f"`
	NoRender    bool   `help:"Skip headless Chrome and use plain fetches."`
	Debug       bool   `help:"Enable debug logging."`
	MetricsAddr string `help:"Serve Prometheus metrics on this address while running." name:"metrics-addr"`
}

func main() {
	var flags CLIFlags
	kctx := kong.Parse(&flags,
		kong.Name("siteextract"),
		kong.Description("Crawl a website and extract the data a query asks for."),
		kong.UsageOnError(),
	)

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "siteextract",
	})
	if flags.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	log.SetDefault(logger)

	kctx.FatalIfErrorf(run(flags, logger, os.Stdout, os.Stderr))
}

func run(flags CLIFlags, logger *log.Logger, stdout, stderr io.Writer) error {
	cfg, err := buildConfig(flags, os.Getenv)
	if err != nil {
		return err
	}
	target := buildTarget(flags, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if flags.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    flags.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		logger.Info("metrics server enabled", "addr", flags.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", "err", err)
			}
		}()
	}

	tracker := progress.New(stderr)
	p, err := crawl.New(cfg,
		crawl.WithLogger(logger),
		crawl.WithMetrics(m),
		crawl.WithPageObserver(tracker),
	)
	if err != nil {
		return err
	}
	defer p.Close()

	res := p.CrawlAndExtract(ctx, target)
	tracker.Stop()

	if flags.Output != "" {
		w, err := writer.New(flags.Output)
		if err != nil {
			return err
		}
		paths, err := w.WriteResult(res)
		if err != nil {
			return err
		}
		logger.Info("results written", "files", paths)
	}

	_, failed := tracker.Counts()
	if err := printResult(stdout, res, flags.Format, tracker.Elapsed(), failed); err != nil {
		return err
	}

	if !res.Success {
		return errors.New(res.Error)
	}
	return nil
}

// buildConfig loads the config file, then applies environment variables and
// finally command line flags.
func buildConfig(flags CLIFlags, getenv func(string) string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.ConfigFile != "" {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("error loading configuration: %w", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv(getenv)

	if flags.NoRender {
		cfg.Render.DisableRender = true
	}
	if flags.Depth != nil {
		cfg.Crawl.MaxDepth = *flags.Depth
	}
	if flags.Links != nil {
		cfg.Crawl.MaxLinks = *flags.Links
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildTarget(flags CLIFlags, cfg *config.Config) common.CrawlTarget {
	target := common.NewCrawlTarget(flags.URL, flags.Query)
	target.MaxDepth = cfg.Crawl.MaxDepth
	target.MaxLinks = cfg.Crawl.MaxLinks
	return target
}

func printResult(w io.Writer, res *common.CrawlResult, format string, elapsed time.Duration, failedPages int) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "html":
		if res.TableHTML != nil {
			_, err := fmt.Fprintln(w, *res.TableHTML)
			return err
		}
		_, err := fmt.Fprintf(w, "<p>%s</p>\n", html.EscapeString(res.Summary))
		return err
	case "markdown":
		fmt.Fprintf(w, "**%s**\n\n", res.Summary)
		if res.ExtractedData != nil {
			if md := present.Format(*res.ExtractedData).Markdown(); md != "" {
				_, err := fmt.Fprintln(w, md)
				return err
			}
		}
		return nil
	default:
		panel := ui.NewSummaryPanel(res)
		panel.SetStats(elapsed, failedPages)
		fmt.Fprintln(w, panel.View())
		if res.ExtractedData != nil {
			if text := present.Format(*res.ExtractedData).Text(); text != "" {
				_, err := fmt.Fprintln(w, text)
				return err
			}
		}
		return nil
	}
}
