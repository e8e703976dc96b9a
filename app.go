package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zer00p/wafel-installer/internal/cfw"
	"github.com/zer00p/wafel-installer/internal/config"
	"github.com/zer00p/wafel-installer/internal/download"
	"github.com/zer00p/wafel-installer/internal/firmware"
	"github.com/zer00p/wafel-installer/internal/formatter"
	"github.com/zer00p/wafel-installer/internal/fsa"
	"github.com/zer00p/wafel-installer/internal/journal"
	"github.com/zer00p/wafel-installer/internal/prompt"
	"github.com/zer00p/wafel-installer/internal/startup"
	"github.com/zer00p/wafel-installer/internal/tui"
	"github.com/zer00p/wafel-installer/internal/workflow"
)

// app holds the collaborators built from the configuration.
type app struct {
	cfg       *config.Config
	log       log.FieldLogger
	kernel    *firmware.Memory
	client    *fsa.Client
	mounts    *fsa.Registry
	journal   *journal.Journal
	downloads *download.Installer
	env       *cfw.Host
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := log.StandardLogger()

	kernel, err := firmware.LoadMemory(cfg.Firmware.State)
	if err != nil {
		return nil, fmt.Errorf("load firmware state: %w", err)
	}
	res := fsa.HostResolver{Kernel: kernel, SD: cfg.Devices.SD, USB: cfg.Devices.USB}
	transport := &fsa.HostTransport{Kernel: kernel, Resolver: res, Direct: cfg.Devices.DirectIO, Log: logger}
	client := fsa.NewClient(transport, res, cfg.Devices.DirectIO, logger)

	a := &app{
		cfg:    cfg,
		log:    logger,
		kernel: kernel,
		client: client,
		mounts: fsa.NewRegistry(client, logger),
		downloads: &download.Installer{
			Client:  download.NewClient(cfg.Download.Timeout, cfg.Download.BaseURLs, logger),
			SLCRoot: cfg.SLCRoot,
			SDRoot:  cfg.SDRoot,
		},
		env: &cfw.Host{SLCRoot: cfg.SLCRoot, SDRoot: cfg.SDRoot, Firmware: kernel, Log: logger},
	}
	if !cfg.Journal.Disabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			logger.WithError(err).Warn("journal unavailable, continuing without it")
		} else {
			a.journal = j
		}
	}
	return a, nil
}

func (a *app) Close() {
	a.mounts.Close()
	if a.journal != nil {
		_ = a.journal.Close()
	}
}

func (a *app) workflow(ui prompt.UI) *workflow.Workflow {
	a.downloads.Client.Print = ui.Print
	w := &workflow.Workflow{
		UI:                ui,
		Storage:           workflow.ClientStorage(a.client),
		Mounts:            a.mounts,
		Formatter:         formatter.New(a.client, a.kernel, a.log),
		Kernel:            a.kernel,
		Downloads:         a.downloads,
		CFW:               a.env,
		Log:               a.log,
		DefaultFATPercent: a.cfg.DefaultFATPercent,
	}
	if a.journal != nil {
		w.Journal = a.journal
	}
	return w
}

func (a *app) logPath(flag string) string {
	if flag != "" {
		return flag
	}
	return filepath.Join(filepath.Dir(a.cfg.Journal.Path), "installer.log")
}

// runInteractive opens the full screen UI and runs fn against a fresh
// workflow. A user cancel is a clean exit.
func runInteractive(opts *globalOptions, fn func(ctx context.Context, w *workflow.Workflow) error) error {
	a, err := newApp(opts.config)
	if err != nil {
		return err
	}
	defer a.Close()

	var logFile io.Closer
	if logFile, err = redirectLog(a.logPath(opts.logFile)); err != nil {
		return err
	}
	defer func() {
		log.SetOutput(os.Stderr)
		_ = logFile.Close()
	}()

	ui, err := tui.New("Wafel Installer "+version, a.cfg.PollInterval)
	if err != nil {
		return err
	}
	defer ui.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		ui.RequestStop()
	}()

	err = fn(ctx, a.workflow(ui))
	if errors.Is(err, workflow.ErrUserCancelled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func interactiveCmd(opts *globalOptions, use, short string, fn func(ctx context.Context, w *workflow.Workflow) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInteractive(opts, fn)
		},
	}
}

func runMainMenu(ctx context.Context, w *workflow.Workflow) error {
	return w.MainMenu(ctx)
}

func runStartup(ctx context.Context, w *workflow.Workflow) error {
	if err := startup.New(w, w.Log).Run(ctx); err != nil {
		return err
	}
	return w.MainMenu(ctx)
}

func runFormatMenu(ctx context.Context, w *workflow.Workflow) error {
	return w.FormatMenu(ctx)
}

func runSDUSB(ctx context.Context, w *workflow.Workflow) error {
	return w.SDUSBSetup(ctx)
}

func runPartitionedUSB(ctx context.Context, w *workflow.Workflow) error {
	return w.PartitionedUSBSetup(ctx)
}
