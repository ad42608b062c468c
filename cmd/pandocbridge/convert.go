package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/klauspost/compress/zstd"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	bridge "github.com/SaveTheRbtz/pandoc-bridge-go"
	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

const zstdExt = ".zst"

var (
	flagFrom       string
	flagTo         string
	flagSettings   string
	flagOutput     string
	flagOutputDir  string
	flagJobs       int
	flagCharsetIn  string
	flagCharsetOut string
	flagProgress   bool
	flagSeekable   bool
	flagFrameSize  int
	flagLevel      int
	flagVerify     bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [file...]",
	Short: "Convert files, or stdin when no file is given",
	Long: `Convert streams every input through the engine.  Inputs ending in .zst are
decompressed, outputs ending in .zst are compressed.

Examples:
  pandocbridge convert --engine html --from html --to gfm page.html -o page.md
  pandocbridge convert --output-dir out --to markdown --seekable -j 4 a.md b.md.zst
  cat latin1.txt | pandocbridge convert --charset-in latin1 --charset-out utf-16le`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	// Pass-through engine parameters; an unset flag is not passed at all.
	convertCmd.Flags().StringVar(&flagFrom, "from", "", "source format")
	convertCmd.Flags().StringVar(&flagTo, "to", "", "target format")
	convertCmd.Flags().StringVar(&flagSettings, "settings", "", "engine settings")

	convertCmd.Flags().StringVarP(&flagOutput, "output", "o", "-", "output file, - for stdout")
	convertCmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "write each input into this directory")
	convertCmd.Flags().IntVarP(&flagJobs, "jobs", "j", 1, "number of files converted in parallel")

	convertCmd.Flags().StringVar(&flagCharsetIn, "charset-in", "", "input charset (default utf-8)")
	convertCmd.Flags().StringVar(&flagCharsetOut, "charset-out", "", "output charset (default utf-8)")

	convertCmd.Flags().BoolVar(&flagProgress, "progress", false, "show a progress bar per input file")
	convertCmd.Flags().BoolVar(&flagSeekable, "seekable", false, "write .zst outputs in the seekable format")
	convertCmd.Flags().IntVar(&flagFrameSize, "frame-size", 128<<10, "uncompressed frame size of seekable outputs")
	convertCmd.Flags().IntVarP(&flagLevel, "quality", "q", 1, "compression quality (lower == faster)")
	convertCmd.Flags().BoolVar(&flagVerify, "verify", false, "check that the output bytes match the input bytes")
}

func runConvert(cmd *cobra.Command, args []string) (err error) {
	if len(args) == 0 {
		args = []string{"-"}
	}
	if flagOutputDir == "" && len(args) > 1 {
		return fmt.Errorf("--output-dir is required for multiple inputs")
	}
	if flagOutputDir != "" && cmd.Flags().Changed("output") {
		return fmt.Errorf("--output and --output-dir are mutually exclusive")
	}
	if flagJobs <= 0 {
		return fmt.Errorf("--jobs must be positive: %d", flagJobs)
	}

	c, err := newConverter(cmd)
	if err != nil {
		return err
	}

	// Pin the engine so it is not torn down between files.
	lease, err := bridge.Acquire(c.engine)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, lease.Release())
	}()

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(flagJobs)
	for _, input := range args {
		input := input
		output := flagOutput
		if flagOutputDir != "" {
			output = outputPath(flagOutputDir, input, flagTo, flagSeekable)
		}
		g.Go(func() error {
			if err := c.convert(ctx, input, output); err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// converter holds everything a single file conversion needs.
type converter struct {
	engine env.Engine
	logger *zap.Logger

	capacity int
	opts     []bridge.ConvertOption
	inEnc    encoding.Encoding
	outEnc   encoding.Encoding

	progress  bool
	seekable  bool
	frameSize int
	level     int
	verify    bool
}

func newConverter(cmd *cobra.Command) (*converter, error) {
	engine, err := openEngine(flagEngine, flagCapacity, logger)
	if err != nil {
		return nil, err
	}

	c := &converter{
		engine:    engine,
		logger:    logger,
		capacity:  flagCapacity,
		progress:  flagProgress,
		seekable:  flagSeekable,
		frameSize: flagFrameSize,
		level:     flagLevel,
		verify:    flagVerify,
	}

	flags := cmd.Flags()
	if flags.Changed("from") {
		c.opts = append(c.opts, bridge.WithFrom(flagFrom))
	}
	if flags.Changed("to") {
		c.opts = append(c.opts, bridge.WithTo(flagTo))
	}
	if flags.Changed("settings") {
		c.opts = append(c.opts, bridge.WithSettings(flagSettings))
	}

	if flagCharsetIn != "" {
		if c.inEnc, err = bridge.LookupCharset(flagCharsetIn); err != nil {
			return nil, err
		}
	}
	if flagCharsetOut != "" {
		if c.outEnc, err = bridge.LookupCharset(flagCharsetOut); err != nil {
			return nil, err
		}
	}
	if c.verify && (c.inEnc != nil || c.outEnc != nil) {
		return nil, fmt.Errorf("--verify can't be used with charset conversion")
	}
	return c, nil
}

func (c *converter) convert(ctx context.Context, input, output string) (err error) {
	in, err := c.openInput(input)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, in.Close())
	}()

	out, err := c.openOutput(output)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	s, err := bridge.NewSession(c.engine, bridge.WithCapacity(c.capacity), bridge.WithLogger(c.logger))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()

	var stats bridge.Stats
	tw := bridge.NewTextWriter(out, c.outEnc)
	opts := append([]bridge.ConvertOption{bridge.WithStats(&stats)}, c.opts...)
	err = s.Convert(ctx, bridge.NewTextReader(in, c.inEnc), tw, opts...)
	err = multierr.Append(err, tw.Close())

	var convErr *bridge.ConversionError
	if errors.As(err, &convErr) {
		c.logger.Error("engine rejected the document",
			zap.String("input", input), zap.String("message", convErr.Message))
	}
	if err != nil {
		return err
	}

	c.logger.Info("converted", zap.String("input", input), zap.String("output", output), zap.Object("stats", &stats))
	if c.verify {
		if stats.PulledChecksum != stats.PushedChecksum {
			return fmt.Errorf("checksum verification failed: pulled %016x, pushed %016x",
				stats.PulledChecksum, stats.PushedChecksum)
		}
		c.logger.Info("checksum verification succeeded", zap.Uint64("checksum", stats.PushedChecksum))
	}
	return nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// writeCloser closes its closers in order.
type writeCloser struct {
	io.Writer
	closers []io.Closer
}

func (w *writeCloser) Close() (err error) {
	for _, c := range w.closers {
		err = multierr.Append(err, c.Close())
	}
	return
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

func (c *converter) openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return readCloser{os.Stdin, nopCloser}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	var r io.Reader = f
	if c.progress {
		size := int64(-1)
		if fi, err := f.Stat(); err == nil {
			size = fi.Size()
		}
		bar := progressbar.DefaultBytes(size, filepath.Base(path))
		r = io.TeeReader(r, bar)
	}

	if !strings.HasSuffix(path, zstdExt) {
		return readCloser{r, f}, nil
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create zstd decompressor: %w", err), f.Close())
	}
	return readCloser{dec, closerFunc(func() error {
		dec.Close()
		return f.Close()
	})}, nil
}

func (c *converter) openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return &writeCloser{Writer: os.Stdout}, nil
	}

	f, err := os.OpenFile(path, os.O_TRUNC|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	if !strings.HasSuffix(path, zstdExt) {
		return &writeCloser{Writer: f, closers: []io.Closer{f}}, nil
	}

	level := zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level))
	if !c.seekable {
		zw, err := zstd.NewWriter(f, level)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to create zstd encoder: %w", err), f.Close())
		}
		return &writeCloser{Writer: zw, closers: []io.Closer{zw, f}}, nil
	}

	enc, err := zstd.NewWriter(nil, level)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create zstd encoder: %w", err), f.Close())
	}
	sw, err := seekable.NewWriter(f, enc, seekable.WithWLogger(c.logger))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create seekable writer: %w", err), f.Close())
	}
	// Every write to the seekable writer becomes a frame of its own.
	bw := bufio.NewWriterSize(sw, c.frameSize)
	return &writeCloser{Writer: bw, closers: []io.Closer{closerFunc(bw.Flush), sw, enc, f}}, nil
}

// extensions maps target formats to file extensions.
var extensions = map[string]string{
	"markdown":   ".md",
	"gfm":        ".md",
	"commonmark": ".md",
	"html":       ".html",
	"plain":      ".txt",
}

// outputPath names the output of input inside dir.  The extension follows the target format,
// the input's own extension is kept when the format has none.
func outputPath(dir, input, to string, compress bool) string {
	name := "stdin"
	if input != "-" {
		name = strings.TrimSuffix(filepath.Base(input), zstdExt)
	}
	if ext, ok := extensions[to]; ok {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ext
	}
	if compress {
		name += zstdExt
	}
	return filepath.Join(dir, name)
}
