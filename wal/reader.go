package wal

import (
	"io"
	"os"
)

// OpenWALForReading opens the WAL in dir for reading from the oldest
// segment. It returns ErrWALNotFound when dir holds no segments.
func OpenWALForReading(dir string) (Reader, error) {
	segments := listSegments(dir)
	if len(segments) == 0 {
		return nil, ErrWALNotFound
	}
	return &segmentReader{dir: dir, segments: segments}, nil
}

// segmentReader reads every segment in order as one stream
type segmentReader struct {
	dir      string
	segments []int
	file     *os.File
	rr       *recordReader
}

func (r *segmentReader) Read() (*Message, error) {
	for {
		if r.rr == nil {
			if len(r.segments) == 0 {
				return nil, io.EOF
			}
			f, err := os.Open(segmentPath(r.dir, r.segments[0]))
			if err != nil {
				return nil, err
			}
			r.segments = r.segments[1:]
			r.file, r.rr = f, newRecordReader(f)
		}

		msg, err := r.rr.next()
		if err == io.EOF {
			r.closeSegment()
			continue
		}
		return msg, err
	}
}

func (r *segmentReader) closeSegment() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file, r.rr = nil, nil
	return err
}

func (r *segmentReader) Close() error {
	return r.closeSegment()
}

var _ Reader = (*segmentReader)(nil)
