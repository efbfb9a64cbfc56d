package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/tabwriter"

	"mediaconv/config"
	"mediaconv/converter"
	"mediaconv/engine"
	"mediaconv/formats"
	"mediaconv/logger"
	"mediaconv/metrics"
	"mediaconv/models"
	"mediaconv/progress"
	writerbackends "mediaconv/writerBackends"

	"golang.org/x/term"
)

// newManager builds the engine manager for the configured engine source.
func newManager(cfg *config.Config) *engine.Manager {
	log := logger.Named("engine")

	var loader engine.Loader
	switch cfg.Engine.Source {
	case config.EngineSourceArtifact:
		var secret []byte
		if cfg.Engine.ManifestSecret != "" {
			secret = []byte(cfg.Engine.ManifestSecret)
		} else {
			log.Warn("no manifest secret configured, engine manifest is not verified")
		}
		loader = &engine.ArtifactLoader{
			BaseURL:    cfg.Engine.BaseURL,
			Version:    cfg.Engine.Version,
			CacheDir:   cfg.EngineCacheDir(),
			ScratchDir: cfg.EngineScratchDir(),
			Secret:     secret,
			Logger:     log,
		}
	default:
		loader = &engine.SystemLoader{
			Path:       cfg.Engine.FFmpegPath,
			ScratchDir: cfg.EngineScratchDir(),
			Logger:     log,
		}
	}

	return engine.NewManager(loader,
		engine.WithLogger(log),
		engine.WithLoadTimeout(cfg.Engine.LoadTimeout),
	)
}

func newService(cfg *config.Config) *converter.Service {
	return converter.NewService(newManager(cfg), converter.WithExecTimeout(cfg.Engine.ExecTimeout))
}

// buildRequest resolves formats and options from flag values. An empty
// from is detected from the input's name and content.
func buildRequest(path string, data []byte, from, to, quality, speed string) (models.ConversionRequest, error) {
	req := models.ConversionRequest{File: models.InputFile{Name: filepath.Base(path), Data: data}}

	if to == "" {
		return req, usageError{"-to is required"}
	}
	target, err := models.ParseFormat(to)
	if err != nil {
		return req, usageError{fmt.Sprintf("invalid -to: %v", err)}
	}
	req.To = target

	if from == "" {
		detected, err := formats.Detect(req.File.Name, data)
		if err != nil {
			return req, err
		}
		req.From = detected
	} else {
		source, err := models.ParseFormat(from)
		if err != nil {
			return req, usageError{fmt.Sprintf("invalid -from: %v", err)}
		}
		req.From = source
	}

	q, err := models.ParseQuality(quality)
	if err != nil {
		return req, usageError{err.Error()}
	}
	s, err := models.ParseSpeed(speed)
	if err != nil {
		return req, usageError{err.Error()}
	}
	req.Options = models.ConversionOptions{Quality: q, Speed: s}
	return req, nil
}

func runConvert(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	from := fs.String("from", "", "source format (detected when omitted)")
	to := fs.String("to", "", "target format")
	quality := fs.String("quality", "", "low, medium or high (default medium)")
	speed := fs.String("speed", "", "fast, medium or slow (default fast)")
	out := fs.String("o", "", "destination: path, file://, s3://, gs:// or sftp:// URI")
	metricsFile := fs.String("metrics-file", cfg.Metrics.TextfilePath, "write Prometheus metrics here on exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError{"exactly one input file is required"}
	}
	if *metricsFile != "" {
		defer func() {
			if err := metrics.WriteTextfile(*metricsFile); err != nil {
				logger.Warnf("failed to write metrics to %s: %v", *metricsFile, err)
			}
		}()
	}

	input := fs.Arg(0)
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	req, err := buildRequest(input, data, *from, *to, *quality, *speed)
	if err != nil {
		return err
	}

	svc := newService(cfg)
	defer svc.Close()

	logger.Infof("Converting %s (%s -> %s, quality=%s, speed=%s)", input, req.From, req.To,
		req.Options.Normalize().Quality, req.Options.Normalize().Speed)

	bar := newProgressPrinter(stderr)
	res, err := svc.Convert(ctx, req.File, req.From, req.To, progress.Monotonic(bar), req.Options)
	bar.Done(err == nil)
	if err != nil {
		return err
	}

	if formats.IsImageFormat(req.To) {
		if info, err := formats.ImageInfo(res.Data); err == nil {
			logger.Infof("Output image %dx%d %s", info.Width, info.Height, info.Format)
		}
	}

	dest, err := writerbackends.WriteResult(ctx, *out, res, cfg.Sinks)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%d bytes\n", dest, res.Size())
	return nil
}

func runFormats(_ context.Context, _ *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("formats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	from := fs.String("from", "", "only list targets reachable from this format")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list := formats.All()
	if *from != "" {
		f, err := models.ParseFormat(*from)
		if err != nil {
			return usageError{fmt.Sprintf("invalid -from: %v", err)}
		}
		if _, err := formats.Describe(f); err != nil {
			return err
		}
		list = formats.Targets(f)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORMAT\tKIND\tMIME\tEXT\tTARGETS")
	for _, f := range list {
		d, err := formats.Describe(f)
		if err != nil {
			continue
		}
		targets := formats.Targets(f)
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = string(t)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Format, d.Kind, d.MimeType, d.Extension, strings.Join(names, ","))
	}
	return tw.Flush()
}

func runDoctor(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	m := newManager(cfg)
	defer m.Dispose()

	fmt.Fprintf(stdout, "engine source:  %s\n", cfg.Engine.Source)
	h, err := m.Acquire(ctx)
	fmt.Fprintf(stdout, "engine state:   %s\n", m.State())
	if err != nil {
		return err
	}

	type described interface {
		Path() string
		Root() string
		Version(ctx context.Context) (string, error)
	}
	if d, ok := h.Engine().(described); ok {
		v, err := d.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "engine binary:  %s\n", d.Path())
		fmt.Fprintf(stdout, "engine version: %s\n", v)
		fmt.Fprintf(stdout, "engine root:    %s\n", d.Root())
	}
	return nil
}

func runVersion(_ context.Context, cfg *config.Config, _ []string, stdout, _ io.Writer) error {
	fmt.Fprintf(stdout, "mediaconv %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if cfg.Engine.Source == config.EngineSourceArtifact {
		fmt.Fprintf(stdout, "engine: %s release %s\n", cfg.Engine.Source, cfg.Engine.Version)
	} else {
		fmt.Fprintf(stdout, "engine: %s\n", cfg.Engine.Source)
	}
	return nil
}

// progressPrinter renders a bar in place on a terminal and a log line every
// 10% elsewhere.
type progressPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	tty   bool
	width int
	last  int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	p := &progressPrinter{w: w, width: 40, last: -1}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 20 {
			p.width = min(cols-12, 60)
		}
	}
	return p
}

func (p *progressPrinter) Report(pr models.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pct := int(progress.Clamp(pr.Ratio) * 100)
	if p.tty {
		if pct == p.last {
			return
		}
		filled := pct * p.width / 100
		fmt.Fprintf(p.w, "\r[%s%s] %3d%%", strings.Repeat("=", filled), strings.Repeat(" ", p.width-filled), pct)
		p.last = pct
		return
	}
	if step := pct / 10 * 10; step > p.last {
		p.last = step
		logger.Infof("Progress %d%%", step)
	}
}

// Done terminates the in-place line.
func (p *progressPrinter) Done(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.last >= 0 {
		if !ok {
			fmt.Fprint(p.w, " failed")
		}
		fmt.Fprintln(p.w)
	}
}
