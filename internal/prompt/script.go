package prompt

import (
	"fmt"
	"strings"
	"sync"
)

// Shown records one prompt a Script answered.
type Shown struct {
	Message      string
	Options      []string
	DefaultIndex int
	Answer       int
}

// Script is a UI that answers prompts from a queue of option labels and
// feeds polled buttons from a queue of events. It lets a workflow run to
// completion without a terminal.
//
// When the answer queue is exhausted every prompt is answered with Back;
// when the button queue is exhausted Poll returns ButtonBack, so any loop
// still waiting unwinds.
type Script struct {
	mu      sync.Mutex
	answers []string
	buttons []Button
	// OnShow, when set, is called with the message of every prompt before
	// it is answered.
	OnShow func(message string)
	// OnPoll, when set, is called before each poll with the number of
	// polls served so far.
	OnPoll func(n int)

	polls   int
	Shown   []Shown
	Screens [][]string
	Lines   []string
	Errors  []error
}

// BackLabel answers a prompt with Back.
const BackLabel = "<back>"

// NewScript queues answers, each the label of the option to choose.
func NewScript(answers ...string) *Script {
	return &Script{answers: answers}
}

// Press queues polled buttons.
func (s *Script) Press(buttons ...Button) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons = append(s.buttons, buttons...)
	return s
}

// PressNext puts b in front of the queued buttons.
func (s *Script) PressNext(b Button) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons = append([]Button{b}, s.buttons...)
}

// Answer queues more answers.
func (s *Script) Answer(labels ...string) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, labels...)
	return s
}

func (s *Script) Show(message string, options []string, defaultIndex int) int {
	s.mu.Lock()
	hook := s.OnShow
	s.mu.Unlock()
	if hook != nil {
		hook(message)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := Shown{Message: message, Options: append([]string(nil), options...), DefaultIndex: defaultIndex, Answer: Back}
	if len(s.answers) > 0 {
		label := s.answers[0]
		s.answers = s.answers[1:]
		if label != BackLabel {
			found := false
			for i, o := range options {
				if o == label {
					rec.Answer, found = i, true
					break
				}
			}
			if !found {
				s.Errors = append(s.Errors, fmt.Errorf("no option %q in prompt %q %v", label, firstLine(message), options))
			}
		}
	}
	s.Shown = append(s.Shown, rec)
	return rec.Answer
}

func (s *Script) Poll() Button {
	s.mu.Lock()
	n := s.polls
	s.polls++
	hook := s.OnPoll
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buttons) == 0 {
		return ButtonBack
	}
	b := s.buttons[0]
	s.buttons = s.buttons[1:]
	return b
}

func (s *Script) Screen(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Screens = append(s.Screens, append([]string(nil), lines...))
}

func (s *Script) Print(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lines = append(s.Lines, line)
}

// Remaining returns the answers not consumed yet.
func (s *Script) Remaining() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.answers...)
}

// Messages returns the first line of every prompt shown, in order.
func (s *Script) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Shown))
	for i, sh := range s.Shown {
		out[i] = firstLine(sh.Message)
	}
	return out
}

// Find returns the first prompt whose message contains text.
func (s *Script) Find(text string) (Shown, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range s.Shown {
		if strings.Contains(sh.Message, text) {
			return sh, true
		}
	}
	return Shown{}, false
}

func firstLine(s string) string {
	lines := strings.Split(s, "\n")
	for _, l := range lines {
		if strings.TrimSpace(l) != "" && !strings.HasPrefix(l, " ") {
			return l
		}
	}
	return s
}
