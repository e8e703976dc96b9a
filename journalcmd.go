package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/journal"
	"github.com/zer00p/wafel-installer/internal/mbr"
)

func openJournal(opts *globalOptions) (*app, error) {
	a, err := newApp(opts.config)
	if err != nil {
		return nil, err
	}
	if a.journal == nil {
		a.Close()
		return nil, errors.New("the operation journal is disabled or unavailable")
	}
	return a, nil
}

func journalCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded destructive operations and restore partition tables",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent operations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			ops, err := a.journal.Recent(limit)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Println("No operations recorded.")
				return nil
			}
			return journal.WriteTable(os.Stdout, ops, time.Now())
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "number of operations to show")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one operation and the partition tables recorded with it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			op, err := a.journal.Get(args[0])
			if err != nil {
				return err
			}
			return showOperation(a.journal, op)
		},
	}

	var (
		device string
		phase  string
		force  bool
	)
	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Write a recorded sector back to the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			op, err := a.journal.Get(args[0])
			if err != nil {
				return err
			}
			snap, err := a.journal.SnapshotOf(op.ID, journal.Phase(phase))
			if err != nil {
				return err
			}
			path := device
			if path == "" {
				path = op.Device
			}
			dev, err := blockio.Open(path, false)
			if err != nil {
				return err
			}
			defer dev.Close()
			if len(snap.Data) != int(dev.Info().SectorSize) {
				return fmt.Errorf("snapshot holds %d bytes, device sector size is %d", len(snap.Data), dev.Info().SectorSize)
			}
			fmt.Printf("Restoring the %s snapshot of %s (%s) to sector %d of %s\n", phase, op.ID[:8], op.Kind, snap.LBA, path)
			if !force {
				return errNeedForce
			}
			if err := dev.WriteSectors(snap.LBA, snap.Data); err != nil {
				return err
			}
			return dev.Sync()
		},
	}
	restore.Flags().StringVar(&device, "device", "", "device or image (default: the device the operation ran on)")
	restore.Flags().StringVar(&phase, "phase", string(journal.PhaseBefore), "snapshot to restore: before or after")
	restore.Flags().BoolVar(&force, "force", false, "overwrite the sector")

	cmd.AddCommand(list, show, restore)
	return cmd
}

func showOperation(j *journal.Journal, op *journal.Operation) error {
	fmt.Printf("Operation %s\n", op.ID)
	fmt.Printf("  Device:  %s\n", op.Device)
	fmt.Printf("  Kind:    %s\n", op.Kind)
	fmt.Printf("  Status:  %s\n", op.Status)
	fmt.Printf("  Started: %s (%s)\n", op.StartedAt.Format(time.RFC3339), humanize.Time(op.StartedAt))
	if op.FinishedAt != nil {
		fmt.Printf("  Took:    %s\n", op.FinishedAt.Sub(op.StartedAt).Round(time.Millisecond))
	}
	if len(op.Details) > 0 {
		b, err := json.Marshal(op.Details)
		if err == nil {
			fmt.Printf("  Details: %s\n", b)
		}
	}
	for _, phase := range []journal.Phase{journal.PhaseBefore, journal.PhaseAfter} {
		snap, err := j.SnapshotOf(op.ID, phase)
		if errors.Is(err, journal.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("  Sector %d %s:\n", snap.LBA, phase)
		m, err := mbr.Decode(snap.Data)
		if err != nil {
			fmt.Printf("    %v\n", err)
			continue
		}
		for i, e := range m.Entries {
			if !e.IsEmpty() {
				fmt.Printf("    P%d: %s start %d, %d sectors\n", i+1, e.Type(), e.Start(), e.Sectors())
			}
		}
	}
	return nil
}

func pluginsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the published Stroopwafel plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.config)
			if err != nil {
				return err
			}
			defer a.Close()
			plugins, err := a.downloads.Client.PluginList(cmd.Context(), a.cfg.Download.PluginListURL)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tDESCRIPTION\tINCOMPATIBLE WITH")
			for _, p := range plugins {
				incompatible := "-"
				if len(p.Incompatible) > 0 {
					incompatible = fmt.Sprint(p.Incompatible)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.FileName, p.ShortDescription, incompatible)
			}
			return tw.Flush()
		},
	}
}
