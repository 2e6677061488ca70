package stream

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/downfa11-org/rill/pkg/catalog"
	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/pkg/disk"
	"github.com/downfa11-org/rill/pkg/metrics"
	"github.com/downfa11-org/rill/pkg/topic"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
)

// MaxNameLength is the longest stream or topic name the wire format can carry.
const MaxNameLength = 255

// Manager is the process-wide registry of streams. Lookups take the read
// lock only long enough to fetch the stream; the stream's own lock guards
// its topics. ddl serializes creates and deletes end to end, so catalog and
// file teardown of a deleted stream or topic never interleaves with the
// re-creation of the same id.
type Manager struct {
	ddl     sync.Mutex
	mu      sync.RWMutex
	streams map[uint32]*Stream
	names   map[string]uint32

	limits  topic.Limits
	dm      *disk.Manager
	catalog *catalog.Catalog
}

// NewManager creates an empty registry. With a nil disk manager and catalog
// every partition lives in memory only.
func NewManager(limits topic.Limits, dm *disk.Manager, cat *catalog.Catalog) *Manager {
	return &Manager{
		streams: make(map[uint32]*Stream),
		names:   make(map[string]uint32),
		limits:  limits,
		dm:      dm,
		catalog: cat,
	}
}

// Open builds the registry described by cfg, recovering persisted streams
// when persistence is enabled.
func Open(cfg *config.Config) (*Manager, error) {
	limits := topic.Limits{
		MaxPayloadSize: cfg.MaxPayloadSize,
		MaxMessages:    cfg.MaxPartitionMessages,
	}
	if !cfg.EnablePersistence {
		return NewManager(limits, nil, nil), nil
	}

	cat, err := catalog.Open(filepath.Join(cfg.LogDir, "catalog"))
	if err != nil {
		return nil, err
	}
	dm := disk.NewManager(cfg.LogDir, cfg.FsyncInterval())
	sm := NewManager(limits, dm, cat)
	if err := sm.Load(); err != nil {
		sm.Close()
		return nil, err
	}
	return sm, nil
}

func (sm *Manager) handlerProvider() topic.HandlerProvider {
	if sm.dm == nil {
		return nil
	}
	return sm.dm
}

// Load recreates every stream and topic recorded in the catalog.
func (sm *Manager) Load() error {
	if sm.catalog == nil {
		return nil
	}
	streams, topics, err := sm.catalog.Load()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	sm.mu.Lock()
	for _, def := range streams {
		sm.streams[def.ID] = newStream(def.ID, def.Name, sm.limits, sm.handlerProvider())
		sm.names[def.Name] = def.ID
	}
	sm.mu.Unlock()

	for _, def := range topics {
		s, err := sm.GetStream(def.StreamID)
		if err != nil {
			util.Warn("Skipping topic %d of missing stream %d", def.ID, def.StreamID)
			continue
		}
		t, err := s.CreateTopic(def.ID, def.Name, def.PartitionsCount)
		if err != nil {
			return fmt.Errorf("recover topic %d of stream %d: %w", def.ID, def.StreamID, err)
		}
		util.Info("Recovered topic '%s' (stream %d, topic %d) with %d messages", t.Name, def.StreamID, def.ID, t.MessagesCount())
	}

	sm.updateGauges()
	return nil
}

func validateName(name string) error {
	if name == "" || len(name) > MaxNameLength || !utf8.ValidString(name) {
		return &types.Error{Kind: types.KindInvalidName, Msg: fmt.Sprintf("name must be 1-%d bytes of UTF-8", MaxNameLength)}
	}
	return nil
}

// CreateStream registers a new stream.
func (sm *Manager) CreateStream(streamID uint32, name string) (*Stream, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	sm.ddl.Lock()
	defer sm.ddl.Unlock()
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.streams[streamID]; ok {
		return nil, types.StreamAlreadyExists(streamID)
	}
	if existing, ok := sm.names[name]; ok {
		return nil, &types.Error{Kind: types.KindStreamAlreadyExists, ID: existing, Msg: "name " + name + " is taken"}
	}

	if sm.catalog != nil {
		if err := sm.catalog.PutStream(catalog.StreamDef{ID: streamID, Name: name}); err != nil {
			return nil, fmt.Errorf("persist stream %d: %w", streamID, err)
		}
	}

	s := newStream(streamID, name, sm.limits, sm.handlerProvider())
	sm.streams[streamID] = s
	sm.names[name] = streamID
	metrics.StreamsTotal.Set(float64(len(sm.streams)))
	util.Info("Stream '%s' created with id %d", name, streamID)
	return s, nil
}

// DeleteStream removes a stream with all its topics and partition files.
func (sm *Manager) DeleteStream(streamID uint32) error {
	sm.ddl.Lock()
	defer sm.ddl.Unlock()

	sm.mu.Lock()
	s, ok := sm.streams[streamID]
	if ok {
		delete(sm.streams, streamID)
		delete(sm.names, s.Name)
	}
	sm.mu.Unlock()

	if !ok {
		return types.StreamNotFound(streamID)
	}

	if sm.catalog != nil {
		if err := sm.catalog.DeleteStream(streamID); err != nil {
			return fmt.Errorf("delete stream %d from catalog: %w", streamID, err)
		}
	}
	if sm.dm != nil {
		if err := sm.dm.RemoveStream(streamID); err != nil {
			return fmt.Errorf("remove files of stream %d: %w", streamID, err)
		}
	}

	sm.updateGauges()
	util.Info("Stream '%s' (id %d) deleted", s.Name, streamID)
	return nil
}

// GetStream looks up a stream by id.
func (sm *Manager) GetStream(streamID uint32) (*Stream, error) {
	sm.mu.RLock()
	s, ok := sm.streams[streamID]
	sm.mu.RUnlock()
	if !ok {
		return nil, types.StreamNotFound(streamID)
	}
	return s, nil
}

// Streams returns every stream ordered by id.
func (sm *Manager) Streams() []*Stream {
	sm.mu.RLock()
	out := make([]*Stream, 0, len(sm.streams))
	for _, s := range sm.streams {
		out = append(out, s)
	}
	sm.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateTopic adds a topic to a stream.
func (sm *Manager) CreateTopic(streamID, topicID uint32, name string, partitionsCount uint32) (*topic.Topic, error) {
	sm.ddl.Lock()
	defer sm.ddl.Unlock()

	s, err := sm.GetStream(streamID)
	if err != nil {
		return nil, err
	}
	t, err := s.CreateTopic(topicID, name, partitionsCount)
	if err != nil {
		return nil, err
	}

	if sm.catalog != nil {
		def := catalog.TopicDef{StreamID: streamID, ID: topicID, Name: name, PartitionsCount: partitionsCount}
		if err := sm.catalog.PutTopic(def); err != nil {
			sm.dropTopicFiles(s, topicID)
			return nil, fmt.Errorf("persist topic %d: %w", topicID, err)
		}
	}

	sm.updateGauges()
	util.Info("Topic '%s' created in stream %d with %d partitions", name, streamID, partitionsCount)
	return t, nil
}

func (sm *Manager) dropTopicFiles(s *Stream, topicID uint32) {
	if _, err := s.DeleteTopic(topicID); err != nil {
		util.Warn("rollback of topic %d failed: %v", topicID, err)
	}
	if sm.dm != nil {
		if err := sm.dm.RemoveTopic(s.ID, topicID); err != nil {
			util.Warn("removing files of topic %d failed: %v", topicID, err)
		}
	}
}

// DeleteTopic removes a topic and its partition files.
func (sm *Manager) DeleteTopic(streamID, topicID uint32) error {
	sm.ddl.Lock()
	defer sm.ddl.Unlock()

	s, err := sm.GetStream(streamID)
	if err != nil {
		return err
	}
	t, err := s.DeleteTopic(topicID)
	if err != nil {
		return err
	}

	if sm.catalog != nil {
		if err := sm.catalog.DeleteTopic(streamID, topicID); err != nil {
			return fmt.Errorf("delete topic %d from catalog: %w", topicID, err)
		}
	}
	if sm.dm != nil {
		if err := sm.dm.RemoveTopic(streamID, topicID); err != nil {
			return fmt.Errorf("remove files of topic %d: %w", topicID, err)
		}
	}

	sm.updateGauges()
	util.Info("Topic '%s' (id %d) deleted from stream %d", t.Name, topicID, streamID)
	return nil
}

// AppendMessages appends one message and returns its offset.
func (sm *Manager) AppendMessages(streamID, topicID, partitionID uint32, msg types.PendingMessage) (uint64, error) {
	s, err := sm.GetStream(streamID)
	if err != nil {
		return 0, err
	}
	return s.AppendMessages(topicID, partitionID, msg)
}

// AppendBatch appends msgs and returns the first offset.
func (sm *Manager) AppendBatch(streamID, topicID, partitionID uint32, msgs []types.PendingMessage) (uint64, error) {
	s, err := sm.GetStream(streamID)
	if err != nil {
		return 0, err
	}
	return s.AppendBatch(topicID, partitionID, msgs)
}

// GetMessages polls a partition.
func (sm *Manager) GetMessages(streamID, topicID, partitionID uint32, offset uint64, count uint32) ([]types.Message, error) {
	s, err := sm.GetStream(streamID)
	if err != nil {
		return nil, err
	}
	return s.GetMessages(topicID, partitionID, offset, count)
}

func (sm *Manager) updateGauges() {
	streams := sm.Streams()
	topics := 0
	for _, s := range streams {
		topics += len(s.Topics())
	}
	metrics.StreamsTotal.Set(float64(len(streams)))
	metrics.TopicsTotal.Set(float64(topics))
}

// Close flushes partition files and closes the catalog.
func (sm *Manager) Close() {
	if sm.dm != nil {
		sm.dm.CloseAllHandlers()
	}
	if sm.catalog != nil {
		if err := sm.catalog.Close(); err != nil {
			util.Error("Failed to close catalog: %v", err)
		}
	}
}
