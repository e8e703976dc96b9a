package workflow

import (
	"context"

	"github.com/zer00p/wafel-installer/internal/partition"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

// layoutPass builds the per device pass of the SDUSB and partitioned USB
// flows. partitioned reports whether the device ended up with a WFS
// partition behind the FAT32 one.
func (w *Workflow) layoutPass(partitioned *bool) func(s *session) ActionResult {
	return func(s *session) ActionResult {
		r := w.chooseLayout(s)
		if r == Done {
			*partitioned = hasWiiULayout(s)
		}
		return r
	}
}

func hasWiiULayout(s *session) bool {
	m, err := partition.ReadTable(s.dev)
	if err != nil {
		return false
	}
	survey := partition.Inspect(m, s.info)
	return survey.Count >= 2 && survey.HasTrailingWFS
}

func (w *Workflow) chooseLayout(s *session) ActionResult {
	if !partition.SupportsPartitioning(s.info) {
		w.showDevice(s)
		prompt.Error(w.UI, "The device is too small for a Wii U partition!\nIt needs at least 2 GB.")
		return Cancel
	}

	m, err := partition.ReadTable(s.dev)
	if err == nil {
		if ok, repartitioned := w.checkAndFixOrder(s); repartitioned {
			return Done
		} else if !ok {
			return Cancel
		}
		if m, err = partition.ReadTable(s.dev); err != nil {
			return Continue
		}
	}
	survey := partition.Inspect(m, s.info)

	var opts []option
	if err == nil && survey.Count >= 2 && survey.HasTrailingWFS {
		opts = append(opts, option{"Keep current partitioning", func() ActionResult { return Done }})
	}
	if err == nil && survey.CanCreateAuxiliary() {
		opts = append(opts, option{"Create additional WFS partition", func() ActionResult {
			if w.createWiiUPartition(s, "WFS", "WFS partition created successfully!") {
				return Done
			}
			return Continue
		}})
	}
	opts = append(opts,
		option{"Repartition", func() ActionResult { return w.partitionDevice(s) }},
		option{"Cancel", cancel},
	)
	w.showDevice(s)
	return w.choose("How do you want to set up the partitions?", opts, 0)
}

// SDUSBAction partitions the SD card so its WFS partition can serve as USB
// storage. It reports whether the card ended up partitioned.
func (w *Workflow) SDUSBAction(ctx context.Context) (wantsPartitioned bool, err error) {
	w.transition(StateIdle)
	w.unmountSD("SD card")
	r, _ := w.deviceLoop("SD card", w.layoutPass(&wantsPartitioned))
	if r == Cancel {
		return false, ErrUserCancelled
	}
	return wantsPartitioned, nil
}

// SDUSBSetup runs SDUSBAction followed by the post setup downloads.
func (w *Workflow) SDUSBSetup(ctx context.Context) error {
	wantsPartitioned, err := w.SDUSBAction(ctx)
	if err != nil {
		return err
	}
	if err := w.PostSetupChecks(ctx, false, wantsPartitioned); err != nil {
		return err
	}
	prompt.Inform(w.UI, "SDUSB setup complete!")
	return nil
}

// HasWiiULayout reports whether the device under the SD path carries a
// FAT32 partition followed by a WFS one.
func (w *Workflow) HasWiiULayout() bool {
	s, err := w.openSession()
	if err != nil {
		return false
	}
	defer s.close()
	return hasWiiULayout(s)
}
