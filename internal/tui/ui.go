// Package tui is the full screen terminal front end of the installer. It
// draws a title bar, the current information screen, a console of status
// lines and the menu of the active prompt, and turns key presses into
// polled buttons.
package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/zer00p/wafel-installer/internal/prompt"
)

// ErrInterrupted is returned when the user requests to stop the installer.
var ErrInterrupted = errors.New("interrupted")

const (
	consoleLimit = 200
	buttonQueue  = 32
)

// UI implements prompt.UI and prompt.Drawer on a tcell screen.
type UI struct {
	s        tcell.Screen
	buttons  chan prompt.Button
	stopChan chan struct{}
	once     sync.Once
	poll     time.Duration

	mu      sync.Mutex
	title   string
	screen  []string
	console []string
	menu    *menu
}

type menu struct {
	message string
	options []string
	cursor  int
}

// New opens the terminal. poll is how long Poll waits for a key.
func New(title string, poll time.Duration) (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return NewWithScreen(s, title, poll)
}

// NewWithScreen runs the UI on an existing screen.
func NewWithScreen(s tcell.Screen, title string, poll time.Duration) (*UI, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	u := &UI{
		s:        s,
		buttons:  make(chan prompt.Button, buttonQueue),
		stopChan: make(chan struct{}),
		poll:     poll,
		title:    title,
	}
	go u.eventLoop()
	u.LayoutAndDraw()
	return u, nil
}

// Close restores the terminal.
func (u *UI) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.s == nil {
		return
	}
	u.s.Fini()
	u.s = nil
	fmt.Print("\033[?1049l\033[?25h")
}

// RequestStop signals that the user wants to quit. It can be called
// multiple times safely.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
	})
}

func (u *UI) IsStopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

// Poll waits up to one poll interval for a button. Once a stop was
// requested every poll returns ButtonBack so open prompts unwind.
func (u *UI) Poll() prompt.Button {
	timer := time.NewTimer(u.poll)
	defer timer.Stop()
	select {
	case b := <-u.buttons:
		return b
	case <-u.stopChan:
		return prompt.ButtonBack
	case <-timer.C:
		return prompt.ButtonNone
	}
}

func (u *UI) Show(message string, options []string, defaultIndex int) int {
	choice := prompt.Run(u, u, message, options, defaultIndex)
	u.mu.Lock()
	u.menu = nil
	u.mu.Unlock()
	u.LayoutAndDraw()
	return choice
}

func (u *UI) DrawMenu(message string, options []string, cursor int) {
	u.mu.Lock()
	u.menu = &menu{message: message, options: options, cursor: cursor}
	u.mu.Unlock()
	u.LayoutAndDraw()
}

// Screen replaces the information screen and clears the console.
func (u *UI) Screen(lines ...string) {
	u.mu.Lock()
	u.screen = append([]string(nil), lines...)
	u.console = nil
	u.mu.Unlock()
	u.LayoutAndDraw()
}

func (u *UI) Print(line string) {
	u.mu.Lock()
	u.console = append(u.console, line)
	if len(u.console) > consoleLimit {
		u.console = u.console[len(u.console)-consoleLimit:]
	}
	u.mu.Unlock()
	u.LayoutAndDraw()
}

func putStr(s tcell.Screen, x, y int, str string, style tcell.Style) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		pos := x + i
		if pos >= w {
			break
		}
		s.SetContent(pos, y, r, nil, style)
	}
}

func (m *menu) lines() []string {
	out := strings.Split(m.message, "\n")
	out = append(out, "")
	for i, o := range m.options {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		out = append(out, prefix+o)
	}
	return out
}

// LayoutAndDraw redraws the whole screen. The menu is anchored to the
// bottom; the console gets whatever rows remain under the information
// screen and shows its newest lines.
func (u *UI) LayoutAndDraw() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.s == nil {
		return
	}
	u.s.Clear()
	w, h := u.s.Size()
	y := 0

	if u.title != "" {
		putStr(u.s, 0, y, strings.Repeat("═", w), tcell.StyleDefault)
		putStr(u.s, max((w-len([]rune(u.title)))/2, 0), y, u.title, tcell.StyleDefault.Bold(true))
		y++
	}

	var menuLines []string
	if u.menu != nil {
		menuLines = u.menu.lines()
	}
	bottom := h
	if len(menuLines) > 0 {
		bottom = max(h-len(menuLines)-1, y)
	}

	for _, line := range u.screen {
		if y >= bottom {
			break
		}
		putStr(u.s, 0, y, line, tcell.StyleDefault)
		y++
	}

	console := u.console
	if room := bottom - y; len(console) > room {
		console = console[len(console)-max(room, 0):]
	}
	for _, line := range console {
		putStr(u.s, 0, y, line, tcell.StyleDefault.Dim(true))
		y++
	}

	if len(menuLines) > 0 {
		y = bottom
		putStr(u.s, 0, y, strings.Repeat("─", w), tcell.StyleDefault)
		y++
		for i, line := range menuLines {
			if y >= h {
				break
			}
			style := tcell.StyleDefault
			if i-(len(menuLines)-len(u.menu.options)) == u.menu.cursor {
				style = style.Reverse(true)
			}
			putStr(u.s, 0, y, line, style)
			y++
		}
	}

	u.s.Show()
}

func keyButton(ev *tcell.EventKey) (prompt.Button, bool) {
	switch ev.Key() {
	case tcell.KeyUp:
		return prompt.ButtonUp, true
	case tcell.KeyDown:
		return prompt.ButtonDown, true
	case tcell.KeyLeft:
		return prompt.ButtonLeft, true
	case tcell.KeyRight:
		return prompt.ButtonRight, true
	case tcell.KeyEnter:
		return prompt.ButtonOK, true
	case tcell.KeyEscape, tcell.KeyBackspace, tcell.KeyBackspace2:
		return prompt.ButtonBack, true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'a', 'A', ' ':
			return prompt.ButtonOK, true
		case 'b', 'B':
			return prompt.ButtonBack, true
		}
	}
	return prompt.ButtonNone, false
}

func (u *UI) eventLoop() {
	for {
		select {
		case <-u.stopChan:
			return
		default:
		}
		u.mu.Lock()
		s := u.s
		u.mu.Unlock()
		if s == nil {
			return
		}
		switch ev := s.PollEvent().(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyCtrlC {
				u.RequestStop()
				return
			}
			if b, ok := keyButton(ev); ok {
				select {
				case u.buttons <- b:
				default:
				}
			}
		case *tcell.EventResize:
			s.Sync()
			u.LayoutAndDraw()
		case *tcell.EventInterrupt:
			return
		case nil:
			return
		}
	}
}
