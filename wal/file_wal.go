package wal

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("wal")

const (
	walFilePerm       = 0600
	walDirPerm        = 0700
	writeBufSize      = 64 << 10
	defaultMaxSegSize = 64 << 20
)

// FileWAL appends records to numbered segment files in one directory.
// Sequence numbers continue across segments and restarts.
type FileWAL struct {
	mu sync.Mutex

	group      *Group
	maxSegSize int64

	started bool
	file    *os.File
	buf     *bufio.Writer
	scratch []byte

	segmentIndex int
	segmentSize  int64
	lastSeq      uint64
}

// NewFileWAL creates a WAL in dir with the default segment size
func NewFileWAL(dir string) (*FileWAL, error) {
	return NewFileWALWithOptions(dir, defaultMaxSegSize)
}

// NewFileWALWithOptions creates a WAL in dir that rotates once a segment
// reaches maxSegSize bytes
func NewFileWALWithOptions(dir string, maxSegSize int64) (*FileWAL, error) {
	if err := os.MkdirAll(dir, walDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}
	if maxSegSize <= 0 {
		maxSegSize = defaultMaxSegSize
	}
	return &FileWAL{
		group:      &Group{Dir: dir, Prefix: segmentPrefix, MaxSize: maxSegSize},
		maxSegSize: maxSegSize,
	}, nil
}

// Start recovers the last sequence number, cuts off a torn tail and opens
// the newest segment for appending
func (w *FileWAL) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	segments := listSegments(w.group.Dir)
	if len(segments) > 0 {
		w.group.MinIndex = segments[0]
		w.segmentIndex = segments[len(segments)-1]
		if err := w.recover(segments); err != nil {
			return fmt.Errorf("failed to recover WAL: %w", err)
		}
	}
	w.group.MaxIndex = w.segmentIndex

	if err := w.openSegment(w.segmentIndex); err != nil {
		return err
	}
	w.started = true
	log.Debugw("WAL started", "dir", w.group.Dir, "segment", w.segmentIndex, "last_seq", w.lastSeq)
	return nil
}

// recover walks back from the newest segment to the first one holding a
// record. Only the newest segment can be torn; older ones were synced
// before rotation.
func (w *FileWAL) recover(segments []int) error {
	for i := len(segments) - 1; i >= 0; i-- {
		path := segmentPath(w.group.Dir, segments[i])
		res, err := scanSegment(path)
		if err != nil {
			return fmt.Errorf("segment %d: %w", segments[i], err)
		}

		if res.torn {
			if i != len(segments)-1 {
				return fmt.Errorf("%w: torn record in sealed segment %d", ErrWALCorrupted, segments[i])
			}
			if err := os.Truncate(path, res.validEnd); err != nil {
				return fmt.Errorf("failed to truncate segment %d: %w", segments[i], err)
			}
			log.Warnw("truncated torn WAL tail", "segment", segments[i], "size", res.validEnd)
		}

		if res.records > 0 {
			w.lastSeq = res.lastSeq
			return nil
		}
	}
	return nil
}

func (w *FileWAL) openSegment(index int) error {
	file, err := os.OpenFile(segmentPath(w.group.Dir, index), os.O_WRONLY|os.O_CREATE|os.O_APPEND, walFilePerm)
	if err != nil {
		return fmt.Errorf("failed to open WAL segment %d: %w", index, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat WAL segment %d: %w", index, err)
	}

	w.file = file
	w.buf = bufio.NewWriterSize(file, writeBufSize)
	w.segmentSize = info.Size()
	return nil
}

// Stop flushes, syncs and closes the current segment
func (w *FileWAL) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	w.started = false

	if err := w.sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Write appends msg without syncing
func (w *FileWAL) Write(msg *Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(msg)
}

// WriteSync appends msg and syncs it to disk
func (w *FileWAL) WriteSync(msg *Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.append(msg); err != nil {
		return err
	}
	return w.sync()
}

// append assigns msg the next sequence number. Caller holds w.mu.
func (w *FileWAL) append(msg *Message) error {
	if !w.started {
		return ErrWALClosed
	}
	if w.segmentSize >= w.maxSegSize {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("failed to rotate WAL: %w", err)
		}
	}

	msg.Seq = w.lastSeq + 1
	rec, err := appendRecord(w.scratch[:0], msg)
	if err != nil {
		return err
	}
	w.scratch = rec
	if _, err := w.buf.Write(rec); err != nil {
		return err
	}
	w.lastSeq = msg.Seq
	w.segmentSize += int64(len(rec))
	return nil
}

func (w *FileWAL) rotate() error {
	if err := w.sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	w.segmentIndex++
	w.group.MaxIndex = w.segmentIndex
	log.Infow("rotating WAL", "segment", w.segmentIndex)
	return w.openSegment(w.segmentIndex)
}

// FlushAndSync flushes buffered records and syncs them to disk
func (w *FileWAL) FlushAndSync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return ErrWALClosed
	}
	return w.sync()
}

func (w *FileWAL) sync() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Group returns the segment group
func (w *FileWAL) Group() *Group {
	return w.group
}

// LastSeq returns the sequence number of the last record
func (w *FileWAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

// SegmentCount returns the number of segments
func (w *FileWAL) SegmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.group.MaxIndex - w.group.MinIndex + 1
}

var _ WAL = (*FileWAL)(nil)
