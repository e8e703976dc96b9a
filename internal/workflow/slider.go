package workflow

import (
	"fmt"
	"math"

	"github.com/zer00p/wafel-installer/internal/partition"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

const gib = 1 << 30

// AdjustPercent applies one button press to the FAT share of the split.
// Left and Right step by one, Down and Up by ten. On devices of 1 GB or more
// the FAT partition never drops below 1 GB.
func AdjustPercent(pct int, totalGB float64, b prompt.Button) int {
	switch b {
	case prompt.ButtonLeft:
		if pct > 0 && (totalGB < 1 || totalGB*float64(pct-1)/100 >= 1) {
			pct--
		}
	case prompt.ButtonRight:
		if pct < 100 {
			pct++
		}
	case prompt.ButtonDown:
		if pct > 0 {
			switch {
			case totalGB < 1:
				pct = max(pct-10, 0)
			case totalGB*float64(pct-10)/100 >= 1:
				pct -= 10
			default:
				pct = int(math.Ceil(100 / totalGB))
			}
		}
	case prompt.ButtonUp:
		if pct < 100 {
			pct = min(pct+10, 100)
		}
	}
	return pct
}

func (w *Workflow) defaultPercent(s *session) int {
	pct := partition.DefaultPercent(s.info)
	if pct != 100 && w.DefaultFATPercent > 0 {
		pct = w.DefaultFATPercent
	}
	return pct
}

// partitionSlider lets the user pick the FAT share of the device. ok is
// false when the user backed out.
func (w *Workflow) partitionSlider(s *session) (pct int, ok bool) {
	totalGB := float64(s.info.TotalBytes()) / gib
	pct = w.defaultPercent(s)
	draw := func() {
		w.showDevice(s,
			"Partition "+s.path,
			"===============================",
			fmt.Sprintf("FAT32:  [%3d%%] (%6.2f GB)    Homebrew and vWii USB Loader", pct, totalGB*float64(pct)/100),
			fmt.Sprintf("WFS:    [%3d%%] (%6.2f GB)    Wii U games and VC", 100-pct, totalGB*float64(100-pct)/100),
			"",
			"Use Left/Right to adjust (1% increments)",
			"Use Up/Down to adjust (10% increments)",
			"Press A to confirm, B to cancel",
		)
	}
	draw()
	for {
		switch b := w.UI.Poll(); b {
		case prompt.ButtonOK:
			return pct, true
		case prompt.ButtonBack:
			return pct, false
		case prompt.ButtonNone:
		default:
			if next := AdjustPercent(pct, totalGB, b); next != pct {
				pct = next
				draw()
			}
		}
	}
}
