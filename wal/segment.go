package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const segmentPrefix = "wal"

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%05d", segmentPrefix, index))
}

// listSegments returns the segment indexes in dir in ascending order
func listSegments(dir string) []int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var segments []int
	for _, entry := range entries {
		name, ok := strings.CutPrefix(entry.Name(), segmentPrefix+"-")
		if !ok || entry.IsDir() {
			continue
		}
		if idx, err := strconv.Atoi(name); err == nil && idx >= 0 {
			segments = append(segments, idx)
		}
	}
	sort.Ints(segments)
	return segments
}

// scanResult is what a pass over one segment found
type scanResult struct {
	records  int
	lastSeq  uint64
	validEnd int64 // offset just past the last complete record
	torn     bool
}

func scanSegment(path string) (scanResult, error) {
	var res scanResult
	f, err := os.Open(path)
	if err != nil {
		return res, err
	}
	defer f.Close()

	rr := newRecordReader(f)
	for {
		msg, err := rr.next()
		if err == io.EOF {
			return res, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			res.torn = true
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.records++
		res.lastSeq = msg.Seq
		res.validEnd = rr.off
	}
}
