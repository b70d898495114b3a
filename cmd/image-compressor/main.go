package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/extractor"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/session"
	"image-compressor-go/internal/share"
	"image-compressor-go/internal/statistics"
	"image-compressor-go/internal/web"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	port      int
	quality   int
	outDir    string
	backend   string
	overwrite bool
	version   = "dev"
	buildTime string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-compressor",
	Short: "Compress images from the browser or the command line",
	Long: `image-compressor serves a single-page tool that compresses JPEG, PNG, WebP and
GIF images with an adjustable quality, keeps a per-page history of results and
lets you download or share them.

The same compressor is available from the command line for files and directories.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts the web server with the image compression page.

Access the interface at http://localhost:<port> (default: 8080)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// compressCmd compresses files on disk.
var compressCmd = &cobra.Command{
	Use:   "compress <file|dir>...",
	Short: "Compress image files",
	Long: `Compresses every supported image found in the given files and directories.
Outputs are written next to the inputs (or into --out) with the configured
marker inserted before the extension, e.g. cat.jpg becomes cat_ai.jpg.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// inspectCmd prints what is known about an image file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show image format, dimensions and metadata",
	Long: `Shows the format, dimensions and EXIF metadata of an image. Full metadata is read
with exiftool when it is installed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	compressCmd.Flags().IntVar(&quality, "quality", 70, "output quality, 10-100")
	compressCmd.Flags().StringVar(&outDir, "out", "", "directory for compressed files (default: next to the input)")
	compressCmd.Flags().StringVar(&backend, "backend", "", "compressor backend: auto, imaging or simulated")
	compressCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing output files")

	if buildTime != "" {
		rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Version}} (built %s)\n", buildTime))
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(inspectCmd)
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comp, err := compressor.New(cfg.Compressor)
	if err != nil {
		return err
	}
	log.Infof("Using %s compressor", comp.Name())

	sharer := setupSharer(ctx, cfg, log)

	sessions := session.NewManager(session.Deps{
		Limits:     session.LimitsFromConfig(cfg),
		Compressor: comp,
		Sharer:     sharer,
		Inspector:  extractor.NewEXIFExtractor(log),
		Stats:      stats,
		Logger:     log,
	}, cfg.Session.IdleTimeout)
	defer sessions.Close()
	go sessions.Run(ctx, cfg.Session.SweepEvery)

	server := web.NewServer(cfg, log, sessions, stats)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if !quiet {
		fmt.Printf("Image compressor started on http://localhost:%d\n", cfg.Server.Port)
		fmt.Printf("Press Ctrl+C to stop the server\n\n")
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	if !quiet {
		fmt.Println("\nShutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped gracefully")
	if !quiet {
		fmt.Println(stats.GetSummary())
	}
	return nil
}

// setupSharer connects the share target, falling back to no sharing.
func setupSharer(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) share.Sharer {
	if !cfg.ShareEnabled() {
		return share.Unsupported{}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sharer, err := share.NewMinio(connectCtx, cfg.Share, log)
	if err != nil {
		log.WithError(err).Warn("Share target unavailable, sharing disabled")
		return share.Unsupported{}
	}
	return sharer
}

// runCompress compresses the given files with the configured backend.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if backend != "" {
		cfg.Compressor.Backend = backend
	}
	if cmd.Flags().Changed("quality") {
		if quality < cfg.Compressor.MinQuality || quality > cfg.Compressor.MaxQuality {
			return fmt.Errorf("quality must be between %d and %d", cfg.Compressor.MinQuality, cfg.Compressor.MaxQuality)
		}
	} else {
		quality = cfg.Compressor.DefaultQuality
	}

	log := setupLogger(cfg)
	comp, err := compressor.New(cfg.Compressor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := statistics.NewStatistics()
	results, err := compressor.CompressFiles(ctx, comp, compressor.BatchParams{
		InputPaths: args,
		TargetDir:  outDir,
		Quality:    quality,
		Marker:     cfg.Compressor.OutputMarker,
		Formats:    []string{"jpg", "jpeg", "png", "gif", "webp", "bmp", "tif", "tiff"},
		Overwrite:  overwrite,
	})

	for _, r := range results {
		if r.InputPath == "" {
			continue
		}
		if !r.Success {
			stats.IncrementCompressionsFailed()
			stats.AddError(r.InputPath, "compress", r.Message)
			log.WithField("file", r.InputPath).Warn(r.Message)
			continue
		}
		stats.RecordCompression(r.OriginalSize, r.CompressedSize)
		if !quiet {
			fmt.Printf("%s -> %s: %s -> %s (%.1f%% smaller, %s)\n",
				r.InputPath, r.OutputPath,
				humanize.IBytes(uint64(r.OriginalSize)), humanize.IBytes(uint64(r.CompressedSize)),
				r.PercentageSaved, r.Action)
		}
	}
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("no supported images found")
	}

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		if stats.CompressionsFailed > 0 {
			fmt.Println(stats.GetErrorSummary())
		}
	}
	return nil
}

// runInspect prints image information for a file.
func runInspect(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	log := logrus.New()
	if !verbose {
		log.SetLevel(logrus.WarnLevel)
	}

	report, err := extractor.InspectFile(filePath, log)
	if err != nil {
		return fmt.Errorf("inspect failed: %w", err)
	}

	info := report.Info
	fmt.Printf("File:       %s\n", report.Path)
	fmt.Printf("Size:       %s\n", humanize.IBytes(uint64(report.Size)))
	fmt.Printf("Format:     %s\n", info.Format)
	fmt.Printf("Dimensions: %dx%d\n", info.Width, info.Height)
	if info.CameraMake != "" || info.CameraModel != "" {
		fmt.Printf("Camera:     %s %s\n", info.CameraMake, info.CameraModel)
	}
	if info.Software != "" {
		fmt.Printf("Software:   %s\n", info.Software)
	}
	if info.TakenAt != nil {
		fmt.Printf("Taken:      %s (%s)\n", info.TakenAt.Format("2006-01-02 15:04:05"), info.Source)
	}
	if !info.HasEXIF() {
		fmt.Println("No EXIF metadata found")
	}

	if len(report.Fields) > 0 {
		fmt.Println("\nexiftool fields:")
		for _, k := range report.SortedKeys() {
			fmt.Printf("  %-32s %v\n", k, report.Fields[k])
		}
	}
	return nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
