package firmware

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Memory is a word addressed kernel image. On a host it stands in for the
// console kernel; with a state path set every write is persisted so that
// separate invocations see the same patch state.
type Memory struct {
	mu    sync.Mutex
	words map[uint32]uint32
	path  string
}

type memoryState struct {
	Words []wordState `yaml:"words"`
}

type wordState struct {
	Addr  string `yaml:"addr"`
	Value string `yaml:"value"`
}

// NewMemory returns an unpersisted, unpatched image.
func NewMemory() *Memory {
	return &Memory{words: make(map[uint32]uint32)}
}

// LoadMemory opens the image persisted at path, or an empty one when the
// file does not exist yet.
func LoadMemory(path string) (*Memory, error) {
	m := NewMemory()
	m.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	var st memoryState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, w := range st.Words {
		var addr, val uint32
		if _, err := fmt.Sscanf(w.Addr, "0x%x", &addr); err != nil {
			return nil, fmt.Errorf("parse %s: address %q: %w", path, w.Addr, err)
		}
		if _, err := fmt.Sscanf(w.Value, "0x%x", &val); err != nil {
			return nil, fmt.Errorf("parse %s: value %q: %w", path, w.Value, err)
		}
		m.words[addr] = val
	}
	return m, nil
}

func (m *Memory) Write32(addr, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.words[addr] = value
	return m.save()
}

func (m *Memory) Read32(addr uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[addr], nil
}

func (m *Memory) save() error {
	if m.path == "" {
		return nil
	}
	addrs := make([]uint32, 0, len(m.words))
	for a := range m.words {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	var st memoryState
	for _, a := range addrs {
		st.Words = append(st.Words, wordState{
			Addr:  fmt.Sprintf("0x%08x", a),
			Value: fmt.Sprintf("0x%08x", m.words[a]),
		})
	}
	data, err := yaml.Marshal(&st)
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}
