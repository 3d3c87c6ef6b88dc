// cmd/qlprint/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ql-service/internal/config"
	internalDriver "ql-service/internal/driver"
	"ql-service/internal/driver/brother"
	"ql-service/internal/imaging"
	"ql-service/internal/utils"
	"ql-service/pkg/driver"
)

const usage = `Syntax:
  qlprint [-p lp] -i
          [-p lp] [-m margin] [-a] [-C|-D] [-W width] [-L length] [-Q] [-n num] [-t threshold] [-x timeout] image...
Where:
`

// options is the parsed command line
type options struct {
	infoOnly   bool
	margin     int
	autoCut    bool
	copies     int
	printCfg   driver.PrintConfig
	files      []string
	configFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes qlprint and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	v := viper.New()
	opts, err := parseArgs(v, args, stderr)
	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		return driver.ExitFailure
	}

	cfg, err := config.LoadFrom(v, opts.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return driver.ExitFailure
	}
	opts.printCfg.Threshold = uint8(cfg.Printer.Threshold)

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return driver.ExitFailure
	}
	defer utils.CloseLogger(logger)

	registry := internalDriver.NewRegistry(&cfg.Printer, logger)
	registry.SetEventHandler(&pageReporter{out: stdout, logger: logger})

	err = registry.WithPrinter(ctx, cfg.Printer.Address, func(d *brother.QLDriver) error {
		if err := d.Initialize(ctx); err != nil {
			return err
		}

		if opts.infoOnly {
			status, err := d.Status(ctx)
			if err != nil {
				return err
			}
			return brother.RenderStatus(stdout, status, brother.ReportAll|brother.ReportPhase)
		}

		status, err := d.Configure(ctx, opts.jobOptions())
		if err != nil {
			return err
		}

		loader := imaging.NewLoader(imaging.Options{
			Dither:     cfg.Printer.Dither,
			ScaleToFit: cfg.Printer.ScaleToFit,
			MaxDots:    brother.MaxDots(status.ModelCode),
		}, logger)

		_, err = d.PrintJob(ctx, loader, driver.Job{
			Items:   opts.files,
			Copies:  opts.copies,
			Config:  opts.printCfg,
			Options: opts.jobOptions(),
		})
		return err
	})
	if err != nil {
		fmt.Fprintln(stderr, describeFailure(err))
		return driver.ExitCode(err)
	}
	return driver.ExitOK
}

// parseArgs parses the command line and binds the printer flags onto v
func parseArgs(v *viper.Viper, args []string, stderr io.Writer) (*options, error) {
	flags := pflag.NewFlagSet("qlprint", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	opts := &options{}
	flags.StringVarP(&opts.configFile, "config", "c", "", "Configuration file")
	flags.StringP("printer", "p", "/dev/usb/lp0", "Printer address")
	flags.BoolVarP(&opts.infoOnly, "info", "i", false, "Print status information only, then exit")
	flags.IntVarP(&opts.margin, "margin", "m", -1, "Margin (dots)")
	flags.BoolVarP(&opts.autoCut, "autocut", "a", false, "Enable auto-cut")
	continuous := flags.BoolP("continuous", "C", false, "Request continuous length tape when printing")
	dieCut := flags.BoolP("die-cut", "D", false, "Request die-cut labels when printing")
	width := flags.Uint8P("width", "W", 0, "Request particular width media (mm) when printing")
	length := flags.Uint8P("length", "L", 0, "Request particular length media (mm) when printing")
	quality := flags.BoolP("quality", "Q", false, "Prioritise quality over speed")
	flags.IntVarP(&opts.copies, "copies", "n", 1, "Print num copies")
	flags.IntP("threshold", "t", driver.DefaultThreshold, "Threshold for black-vs-white (0-127 is black)")
	timeout := flags.IntP("timeout", "x", 5, "Time to wait for a successful print, in seconds")
	verbose := flags.BoolP("verbose", "v", false, "Log protocol traffic to stderr")
	flags.Bool("dither", false, "Dither images to black and white")
	flags.Bool("fit", false, "Scale images down to the print head width")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	for key, name := range map[string]string{
		"printer.address":      "printer",
		"printer.threshold":    "threshold",
		"printer.dither":       "dither",
		"printer.scale_to_fit": "fit",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if *timeout <= 0 {
			return nil, fmt.Errorf("timeout must be positive, got %d", *timeout)
		}
		v.Set("printer.timeout", time.Duration(*timeout)*time.Second)
	}

	// Status output owns stdout, so logs always go to stderr.
	v.Set("logging.output", "stderr")
	v.Set("logging.format", "console")
	if *verbose {
		v.Set("logging.level", "debug")
	} else {
		v.Set("logging.level", "warn")
	}

	if *continuous && *dieCut {
		return nil, errors.New("-C and -D are mutually exclusive")
	}

	opts.printCfg = driver.DefaultPrintConfig()
	switch {
	case *continuous:
		opts.printCfg = opts.printCfg.WithMediaType(driver.MediaContinuous)
	case *dieCut:
		opts.printCfg = opts.printCfg.WithMediaType(driver.MediaDieCutLabels)
	}
	if flags.Changed("width") {
		opts.printCfg = opts.printCfg.WithMediaWidth(*width)
	}
	if flags.Changed("length") {
		opts.printCfg = opts.printCfg.WithMediaLength(*length)
	}
	if *quality {
		opts.printCfg.Flags |= driver.PrintConfigQualityFirst
	}

	opts.files = flags.Args()
	if len(opts.files) == 0 && !opts.infoOnly {
		flags.Usage()
		return nil, pflag.ErrHelp
	}
	if opts.margin > 0xffff {
		return nil, fmt.Errorf("margin must be between 0 and 65535 dots, got %d", opts.margin)
	}
	if opts.copies < 1 {
		return nil, fmt.Errorf("copies must be at least 1, got %d", opts.copies)
	}
	if len(opts.files) > 255 && opts.autoCut {
		return nil, fmt.Errorf("auto-cut supports at most 255 images per job, got %d", len(opts.files))
	}

	return opts, nil
}

// jobOptions converts the command line into device setup for the job
func (o *options) jobOptions() driver.JobOptions {
	var jobOpts driver.JobOptions
	if o.margin >= 0 {
		margin := uint16(o.margin)
		jobOpts.Margin = &margin
	}
	if o.autoCut {
		jobOpts.AutoCut = true
		jobOpts.AutoCutEvery = uint8(len(o.files))
	}
	return jobOpts
}

// describeFailure renders err the way operators expect to read it
func describeFailure(err error) string {
	var deviceErr *driver.DeviceError
	var pageErr *driver.PageError

	switch {
	case errors.As(err, &deviceErr):
		return fmt.Sprintf("Printer reported error(s): %s", strings.Join(deviceErr.Conditions, " "))
	case errors.Is(err, driver.ErrProtocolTimeout):
		return "Printer stopped responding!"
	case errors.Is(err, driver.ErrImageLoadFailed) && errors.As(err, &pageErr):
		return fmt.Sprintf("Failed to load image '%s'", pageErr.Item)
	default:
		return err.Error()
	}
}

// pageReporter prints a line per finished page and logs the rest
type pageReporter struct {
	out    io.Writer
	logger *zap.Logger
}

func (r *pageReporter) OnStateChanged(device string, from, to string) {
	r.logger.Debug("Driver state changed", zap.String("from", from), zap.String("to", to))
}

func (r *pageReporter) OnStatus(device string, status *driver.Status) {
	r.logger.Debug("Status received",
		zap.String("type", brother.StatusTypeLabel(status.Type)),
		zap.String("phase", brother.PhaseLabel(status.Phase)),
	)
}

func (r *pageReporter) OnPageCompleted(device string, page driver.PageResult) {
	fmt.Fprintf(r.out, "%s (%dx%d) OK\n", page.Item, page.Width, page.Height)
}

func (r *pageReporter) OnDeviceError(device string, err error) {
	r.logger.Debug("Printer session halted", zap.Error(err))
}
