// wafel-installer prepares SD cards and USB devices for a Wii U console
// running Stroopwafel: it partitions and formats them, keeps the partition
// table consistent and fetches the custom firmware files.
//
// Build:
//
//	go build -o wafel-installer .
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

type globalOptions struct {
	config  string
	verbose int
	quiet   bool
	logFile string
}

func main() {
	var opts globalOptions
	root := &cobra.Command{
		Use:           "wafel-installer",
		Short:         "Wii U SD/USB partitioning and Stroopwafel installer",
		Long:          "Partition and format SD cards and USB devices for a Wii U, set up SDUSB or partitioned USB, and install ISFShax, Stroopwafel and Aroma",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(opts.quiet, opts.verbose)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.config, "config", "c", "", "configuration file (default: search the standard locations)")
	pf.CountVarP(&opts.verbose, "verbose", "v", "increase log verbosity (repeatable)")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "only log errors")
	pf.StringVar(&opts.logFile, "log-file", "", "log file for interactive commands (default: next to the journal)")

	root.AddCommand(
		interactiveCmd(&opts, "menu", "Open the main menu", runMainMenu),
		interactiveCmd(&opts, "startup", "Run the startup device checks, then open the main menu", runStartup),
		interactiveCmd(&opts, "format", "Format or partition the SD card or a USB device", runFormatMenu),
		interactiveCmd(&opts, "sdusb", "Set up SDUSB on the SD card", runSDUSB),
		interactiveCmd(&opts, "usbpart", "Set up a partitioned USB device", runPartitionedUSB),
		infoCmd(&opts),
		fixOrderCmd(&opts),
		devicesCmd(),
		mbrCmd(&opts),
		journalCmd(&opts),
		pluginsCmd(&opts),
	)

	must(root.Execute())
}
