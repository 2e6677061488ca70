package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cockroachdb/pebble"
)

var (
	streamPrefix = []byte("stream/")
	topicPrefix  = []byte("topic/")
)

// StreamDef is the persisted definition of a stream.
type StreamDef struct {
	ID   uint32
	Name string
}

// TopicDef is the persisted definition of a topic.
type TopicDef struct {
	StreamID        uint32
	ID              uint32
	Name            string
	PartitionsCount uint32
}

// Catalog stores stream and topic definitions in a Pebble database so the
// registry can be rebuilt after a restart. Message data lives in partition files.
type Catalog struct {
	db *pebble.DB
}

// Open creates or opens the catalog database in dir.
func Open(dir string) (*Catalog, error) {
	if dir == "" {
		return nil, errors.New("catalog: directory is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", dir, err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func streamKey(id uint32) []byte {
	k := make([]byte, len(streamPrefix)+4)
	copy(k, streamPrefix)
	binary.BigEndian.PutUint32(k[len(streamPrefix):], id)
	return k
}

func topicKey(streamID, topicID uint32) []byte {
	k := make([]byte, len(topicPrefix)+8)
	copy(k, topicPrefix)
	binary.BigEndian.PutUint32(k[len(topicPrefix):], streamID)
	binary.BigEndian.PutUint32(k[len(topicPrefix)+4:], topicID)
	return k
}

// topicRange bounds every topic key of a stream.
func topicRange(streamID uint32) (lower, upper []byte) {
	lower = topicKey(streamID, 0)[:len(topicPrefix)+4]
	if streamID == math.MaxUint32 {
		return lower, prefixEnd(topicPrefix)
	}
	return lower, topicKey(streamID+1, 0)[:len(topicPrefix)+4]
}

func prefixEnd(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++
	return upper
}

func (c *Catalog) PutStream(def StreamDef) error {
	return c.db.Set(streamKey(def.ID), []byte(def.Name), pebble.Sync)
}

// DeleteStream removes a stream definition together with its topics.
func (c *Catalog) DeleteStream(id uint32) error {
	b := c.db.NewBatch()
	defer b.Close()

	if err := b.Delete(streamKey(id), nil); err != nil {
		return err
	}
	lower, upper := topicRange(id)
	if err := b.DeleteRange(lower, upper, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (c *Catalog) PutTopic(def TopicDef) error {
	v := make([]byte, 4+len(def.Name))
	binary.LittleEndian.PutUint32(v, def.PartitionsCount)
	copy(v[4:], def.Name)
	return c.db.Set(topicKey(def.StreamID, def.ID), v, pebble.Sync)
}

func (c *Catalog) DeleteTopic(streamID, topicID uint32) error {
	return c.db.Delete(topicKey(streamID, topicID), pebble.Sync)
}

// Load returns every stored stream and topic, ordered by id.
func (c *Catalog) Load() ([]StreamDef, []TopicDef, error) {
	var streams []StreamDef
	err := c.scan(streamPrefix, func(key, value []byte) error {
		if len(key) != len(streamPrefix)+4 {
			return fmt.Errorf("catalog: malformed stream key %q", key)
		}
		streams = append(streams, StreamDef{
			ID:   binary.BigEndian.Uint32(key[len(streamPrefix):]),
			Name: string(value),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var topics []TopicDef
	err = c.scan(topicPrefix, func(key, value []byte) error {
		if len(key) != len(topicPrefix)+8 || len(value) < 4 {
			return fmt.Errorf("catalog: malformed topic entry %q", key)
		}
		topics = append(topics, TopicDef{
			StreamID:        binary.BigEndian.Uint32(key[len(topicPrefix):]),
			ID:              binary.BigEndian.Uint32(key[len(topicPrefix)+4:]),
			PartitionsCount: binary.LittleEndian.Uint32(value[:4]),
			Name:            string(value[4:]),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return streams, topics, nil
}

func (c *Catalog) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := c.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}
