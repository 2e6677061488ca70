package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
)

// Manager hands out partition file handlers under a single data directory.
type Manager struct {
	mu           sync.Mutex
	handlers     map[string]*Handler
	dir          string
	syncInterval time.Duration
}

func NewManager(dir string, syncInterval time.Duration) *Manager {
	return &Manager{
		handlers:     make(map[string]*Handler),
		dir:          dir,
		syncInterval: syncInterval,
	}
}

func (m *Manager) Dir() string { return m.dir }

func (m *Manager) streamDir(streamID uint32) string {
	return filepath.Join(m.dir, fmt.Sprintf("stream_%d", streamID))
}

func (m *Manager) topicDir(streamID, topicID uint32) string {
	return filepath.Join(m.streamDir(streamID), fmt.Sprintf("topic_%d", topicID))
}

// PartitionPath returns the file backing a partition.
func (m *Manager) PartitionPath(streamID, topicID, partitionID uint32) string {
	return filepath.Join(m.topicDir(streamID, topicID), fmt.Sprintf("partition_%d.log", partitionID))
}

// Open returns the handler for a partition along with its recovered records.
// Opening a partition that already has a live handler is an error.
func (m *Manager) Open(streamID, topicID, partitionID uint32) (*Handler, []types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.PartitionPath(streamID, topicID, partitionID)
	if _, ok := m.handlers[path]; ok {
		return nil, nil, fmt.Errorf("partition file %s already open", path)
	}

	h, msgs, err := OpenHandler(path, m.syncInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("open partition file %s: %w", path, err)
	}
	m.handlers[path] = h
	return h, msgs, nil
}

// RemoveTopic closes the topic's handlers and deletes its files.
func (m *Manager) RemoveTopic(streamID, topicID uint32) error {
	return m.remove(m.topicDir(streamID, topicID))
}

// RemoveStream closes the stream's handlers and deletes its files.
func (m *Manager) RemoveStream(streamID uint32) error {
	return m.remove(m.streamDir(streamID))
}

// CloseTopic closes and forgets the topic's handlers but keeps its files,
// so the partitions can be opened again later.
func (m *Manager) CloseTopic(streamID, topicID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeUnder(m.topicDir(streamID, topicID))
}

func (m *Manager) remove(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeUnder(dir)
	return os.RemoveAll(dir)
}

func (m *Manager) closeUnder(dir string) {
	prefix := dir + string(os.PathSeparator)
	for path, h := range m.handlers {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if err := h.Close(); err != nil {
			util.Warn("Failed to close partition file %s: %v", path, err)
		}
		delete(m.handlers, path)
	}
}

// CloseAllHandlers flushes and closes every open partition file.
func (m *Manager) CloseAllHandlers() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for path, h := range m.handlers {
		util.Debug("Closing partition file %s", path)
		if err := h.Close(); err != nil {
			util.Error("Failed to close partition file %s: %v", path, err)
		}
		delete(m.handlers, path)
	}
}
