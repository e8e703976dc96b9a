// Package prompt defines the blocking dialog and button polling contract the
// workflows run against, and the cursor state machine behind every menu.
package prompt

import (
	"fmt"
	"strings"
)

// Back is returned by Show when the user leaves a prompt without choosing.
const Back = -1

// Button is one polled input event.
type Button int

const (
	ButtonNone Button = iota
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
	ButtonOK
	ButtonBack
)

func (b Button) String() string {
	switch b {
	case ButtonNone:
		return "none"
	case ButtonUp:
		return "up"
	case ButtonDown:
		return "down"
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonOK:
		return "ok"
	case ButtonBack:
		return "back"
	}
	return fmt.Sprintf("button(%d)", int(b))
}

// Input returns the next button event, or ButtonNone when nothing was
// pressed within one poll interval.
type Input interface {
	Poll() Button
}

// UI is everything a workflow needs from the front end.
type UI interface {
	Input
	// Show blocks until an option is chosen and returns its index, or Back.
	Show(message string, options []string, defaultIndex int) int
	// Screen replaces the informational screen shown between prompts.
	Screen(lines ...string)
	// Print appends a console line under the current screen.
	Print(line string)
}

// Drawer renders one frame of a menu.
type Drawer interface {
	DrawMenu(message string, options []string, cursor int)
}

// Run drives a menu from polled input until an option is confirmed or the
// user backs out.
func Run(d Drawer, in Input, message string, options []string, defaultIndex int) int {
	if len(options) == 0 {
		return Back
	}
	cursor := defaultIndex
	if cursor < 0 || cursor >= len(options) {
		cursor = 0
	}
	d.DrawMenu(message, options, cursor)
	for {
		switch in.Poll() {
		case ButtonUp:
			if cursor > 0 {
				cursor--
				d.DrawMenu(message, options, cursor)
			}
		case ButtonDown:
			if cursor < len(options)-1 {
				cursor++
				d.DrawMenu(message, options, cursor)
			}
		case ButtonOK:
			return cursor
		case ButtonBack:
			return Back
		}
	}
}

// Confirm asks a destructive yes/no question with No preselected.
func Confirm(ui UI, message string) bool {
	return ui.Show(message, []string{"Yes", "No"}, 1) == 0
}

// Ask asks a harmless yes/no question with Yes preselected.
func Ask(ui UI, message string) bool {
	return ui.Show(message, []string{"Yes", "No"}, 0) == 0
}

// Inform shows message until acknowledged.
func Inform(ui UI, message string) {
	ui.Show(message, []string{"OK"}, 0)
}

// Error shows an error until acknowledged.
func Error(ui UI, message string) {
	ui.Show(errorText(message), []string{"OK"}, 0)
}

// RetryOrCancel shows an error and reports whether the user wants another
// attempt.
func RetryOrCancel(ui UI, message string) bool {
	return ui.Show(errorText(message), []string{"Retry", "Cancel"}, 0) == 0
}

func errorText(message string) string {
	if strings.TrimSpace(message) == "" {
		message = "No error was specified!"
	}
	return "An error occurred:\n" + message
}
