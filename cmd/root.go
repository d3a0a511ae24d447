package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rawcopy/internal/config"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

var (
	// Global output flags
	verbose      bool
	quiet        bool
	outputFormat string
	configFile   string

	// v merges defaults, the config file, RAWCOPY_* environment and bound flags
	v = config.New()
	// cfg is loaded before every command runs
	cfg *config.Config
	// jobStarted is set once a command starts running
	jobStarted time.Time
)

var rootCmd = &cobra.Command{
	Use:   "rawcopy",
	Short: "Copy files off a live NTFS volume by reading it raw",
	Long: `rawcopy is a read-only command-line tool that extracts files from NTFS
volumes by parsing the on-disk structures directly. Files that are locked by
the running system (registry hives, pagefile, $MFT) can be copied because the
volume is opened as a raw device, never through the filesystem driver.

Works with raw devices (C:, /dev/sdb1), volume images and whole-disk images.

Commands:
  extract     Extract a file or stream by path or MFT record
  list        List a directory from its index
  info        Show volume geometry and metadata
  volumes     List NTFS volumes or partitions of a disk image`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initialize(cmd)
	},
}

// Execute runs the command line and exits with the matching status code
func Execute() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	jobStarted = time.Time{}

	// cobra keeps a subcommand's context from the previous run
	setContext(rootCmd, ctx)
	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()

	if !quiet && !jobStarted.IsZero() {
		fmt.Fprintf(stderr, "Job took %.2f seconds.\n", time.Since(jobStarted).Seconds())
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return app.ExitCode(err)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output and debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	flags.StringVar(&configFile, "config", "", "config file (default: search for rawcopy-config.yaml)")
	flags.String("log-format", "human", "log format (human, json)")
	flags.String("log-file", "", "also write logs to this file")

	// Volume selection shared by every command that opens a volume
	flags.Int64("image-offset", 0, "byte offset of the NTFS boot sector inside an image")
	flags.Int("partition", 0, "1-based partition of a whole-disk image")
	flags.Int("sector-size", 0, "override the detected sector size")

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	rootCmd.MarkFlagsMutuallyExclusive("image-offset", "partition")

	bindFlags(rootCmd, map[string]string{
		"log.format":          "log-format",
		"log.file":            "log-file",
		"log.debug":           "verbose",
		"device.image_offset": "image-offset",
		"device.partition":    "partition",
		"device.sector_size":  "sector-size",
	})
}

// setContext sets ctx on cmd and every command below it
func setContext(cmd *cobra.Command, ctx context.Context) {
	cmd.SetContext(ctx)
	for _, child := range cmd.Commands() {
		setContext(child, ctx)
	}
}

// initialize loads the configuration and starts the logger
func initialize(cmd *cobra.Command) error {
	loaded, err := config.Load(v, configFile)
	if err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "invalid configuration", err)
	}
	cfg = loaded

	if err := logger.InitLogger(logger.LoggerConfig{
		Debug:     cfg.Log.Debug,
		LogFormat: cfg.Log.Format,
		LogFile:   cfg.Log.File,
		Quiet:     quiet,
	}); err != nil {
		return app.NewError(app.ErrCodeSetupFailed, "cannot start logger", err)
	}

	if !quiet && outputFormat == "table" {
		fmt.Fprintf(cmd.ErrOrStderr(), "rawcopy %s - raw NTFS file extraction\n", cmd.Root().Version)
	}
	jobStarted = time.Now()
	return nil
}

// bindFlags lets each named flag of cmd override a configuration key
func bindFlags(cmd *cobra.Command, bindings map[string]string) {
	for key, name := range bindings {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("binding --%s to %s: %v", name, key, err))
		}
	}
}

// newContext builds the application context for a command
func newContext(cmd *cobra.Command) *app.Context {
	ctx := app.NewContext()
	ctx.Context = cmd.Context()
	ctx.OutputFormat = outputFormat
	ctx.Verbose = verbose
	ctx.Quiet = quiet
	ctx.Config = cfg
	ctx.Stdout = cmd.OutOrStdout()
	ctx.Stderr = cmd.ErrOrStderr()
	if verbose && !quiet {
		ctx.SetProgress(func(u app.ProgressUpdate) {
			fmt.Fprintln(ctx.Stderr, u.String())
		})
	}
	return ctx
}

// volumeSource combines the volume argument with the configured image selection
func volumeSource(path string) app.VolumeSource {
	return app.VolumeSource{
		Path:        path,
		ImageOffset: cfg.Device.ImageOffset,
		Partition:   cfg.Device.Partition,
	}
}
