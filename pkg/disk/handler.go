package disk

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
	"golang.org/x/exp/mmap"
)

// Handler owns the append-only file backing one partition.
type Handler struct {
	Path string

	mu     sync.Mutex // file, writer, size, dirty
	file   *os.File
	writer *bufio.Writer
	size   int64
	dirty  bool
	buf    []byte
	// fsync is file.Sync; tests swap it to simulate a failing disk.
	fsync func() error

	syncInterval time.Duration
	done         chan struct{}
	closeOnce    sync.Once
	shutdown     sync.WaitGroup
}

// OpenHandler recovers the records stored at path and opens the file for
// appending. A zero syncInterval fsyncs on every append.
func OpenHandler(path string, syncInterval time.Duration) (*Handler, []types.Message, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}

	msgs, size, err := Recover(path)
	if err != nil {
		return nil, nil, err
	}

	file, err := openAppendFile(path)
	if err != nil {
		return nil, nil, err
	}

	h := &Handler{
		Path:         path,
		file:         file,
		writer:       bufio.NewWriterSize(file, 64<<10),
		size:         size,
		fsync:        file.Sync,
		syncInterval: syncInterval,
		done:         make(chan struct{}),
	}

	if syncInterval > 0 {
		h.shutdown.Add(1)
		go func() {
			defer h.shutdown.Done()
			h.flushLoop()
		}()
	}

	return h, msgs, nil
}

// Recover reads every complete record at path. A trailing partial record left
// by a crash is truncated away. A missing file yields no records.
func Recover(path string) ([]types.Message, int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if info.Size() == 0 {
		return nil, 0, nil
	}

	reader, err := mmap.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("mmap open failed: %w", err)
	}

	data := make([]byte, reader.Len())
	if _, err := reader.ReadAt(data, 0); err != nil {
		_ = reader.Close()
		return nil, 0, fmt.Errorf("mmap read failed: %w", err)
	}
	if err := reader.Close(); err != nil {
		return nil, 0, err
	}

	var msgs []types.Message
	pos := 0
	for pos < len(data) {
		m, n, err := DecodeRecord(data[pos:])
		if errors.Is(err, errIncomplete) {
			break
		}
		if m.Offset != uint64(len(msgs)) {
			return nil, 0, &CorruptError{Path: path, Position: int64(pos), Want: uint64(len(msgs)), Got: m.Offset}
		}
		msgs = append(msgs, m)
		pos += n
	}

	if pos < len(data) {
		util.Warn("Truncating %d trailing bytes of partial record in %s", len(data)-pos, path)
		if err := os.Truncate(path, int64(pos)); err != nil {
			return nil, 0, fmt.Errorf("truncate partial record: %w", err)
		}
	}

	return msgs, int64(pos), nil
}

// Append writes msgs as consecutive records and hands them to the OS before
// returning. On failure, including a failed per-append fsync, the file is cut
// back to its previous length and the records are not counted.
func (h *Handler) Append(msgs ...types.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return fmt.Errorf("partition file %s is closed", h.Path)
	}

	h.buf = h.buf[:0]
	for _, m := range msgs {
		h.buf = EncodeRecord(h.buf, m)
	}

	if _, err := h.writer.Write(h.buf); err != nil {
		h.rollback()
		return fmt.Errorf("write records: %w", err)
	}
	if err := h.writer.Flush(); err != nil {
		h.rollback()
		return fmt.Errorf("flush records: %w", err)
	}

	if h.syncInterval <= 0 {
		if err := h.fsync(); err != nil {
			h.rollback()
			return fmt.Errorf("sync records: %w", err)
		}
	} else {
		h.dirty = true
	}
	h.size += int64(len(h.buf))
	return nil
}

func (h *Handler) rollback() {
	h.writer.Reset(h.file)
	if err := h.file.Truncate(h.size); err != nil {
		util.Error("rollback of %s to %d bytes failed: %v", h.Path, h.size, err)
	}
}

// Size returns the number of bytes of complete records in the file.
func (h *Handler) Size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Sync flushes buffered data and fsyncs the file.
func (h *Handler) Sync() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.syncLocked()
}

func (h *Handler) syncLocked() error {
	if h.file == nil {
		return nil
	}
	if err := h.writer.Flush(); err != nil {
		return err
	}
	if err := h.fsync(); err != nil {
		return err
	}
	h.dirty = false
	return nil
}

func (h *Handler) flushLoop() {
	ticker := time.NewTicker(h.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.mu.Lock()
			if h.dirty {
				if err := h.syncLocked(); err != nil {
					util.Error("sync failed for %s: %v", h.Path, err)
				}
			}
			h.mu.Unlock()
		case <-h.done:
			return
		}
	}
}

// Close stops the sync loop, fsyncs and closes the file.
func (h *Handler) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		h.shutdown.Wait()

		h.mu.Lock()
		defer h.mu.Unlock()
		if syncErr := h.syncLocked(); syncErr != nil {
			err = syncErr
		}
		if closeErr := h.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		h.file = nil
	})
	return err
}
