// Command fetch resolves quotes through the same cache as the server and
// writes them enriched, as CSV or JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"quoteexport/internal/app"
	"quoteexport/internal/config"
	"quoteexport/internal/enrich"
	"quoteexport/internal/export"
	"quoteexport/internal/logger"
	"quoteexport/internal/provider"
)

type options struct {
	category   string
	symbols    string
	format     string
	out        string
	configPath string
	timeout    int
}

func main() {
	var o options
	flag.StringVar(&o.category, "category", "", "configured category to export (e.g. fiis)")
	flag.StringVar(&o.symbols, "symbols", "", "comma-separated asset codes; overrides -category")
	flag.StringVar(&o.format, "format", "csv", "output format: csv or json")
	flag.StringVar(&o.out, "out", "", "output file (default stdout)")
	flag.StringVar(&o.configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.toml (optional)")
	flag.IntVar(&o.timeout, "timeout", 0, "overall timeout seconds (default request_timeout_sec)")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintln(os.Stderr, "fetch:", err)
		os.Exit(1)
	}
}

func run(o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.New(logger.Config{Level: cfg.Server.LogLevel, Pretty: cfg.Server.LogPretty})

	codes, err := selectCodes(cfg, o)
	if err != nil {
		return err
	}

	timeout := cfg.RequestTimeout()
	if o.timeout > 0 {
		timeout = time.Duration(o.timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.Batch.ResolveAll(ctx, codes)
	if err != nil {
		return err
	}
	recs = enrich.Intervals(recs)

	if err := writeTo(o.out, o.format, recs); err != nil {
		return err
	}
	log.Info().Int("records", len(recs)).Str("format", o.format).Msg("quotes written")
	return nil
}

func selectCodes(cfg config.Config, o options) ([]string, error) {
	if s := strings.TrimSpace(o.symbols); s != "" {
		codes := config.SplitCSV(s)
		if len(codes) == 0 {
			return nil, fmt.Errorf("no symbols provided")
		}
		return codes, nil
	}
	if o.category == "" {
		return nil, fmt.Errorf("one of -category or -symbols is required (categories: %s)", strings.Join(cfg.Categories(), ", "))
	}
	codes, ok := cfg.Assets[o.category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q (categories: %s)", o.category, strings.Join(cfg.Categories(), ", "))
	}
	return codes, nil
}

// writeTo writes recs to path, or to stdout when path is empty.
func writeTo(path, format string, recs []provider.Record) (err error) {
	if path == "" {
		return write(os.Stdout, format, recs)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return write(f, format, recs)
}

func write(w io.Writer, format string, recs []provider.Record) error {
	switch strings.ToLower(format) {
	case "csv":
		return export.WriteCSV(w, recs)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	return fmt.Errorf("unknown format %q", format)
}
