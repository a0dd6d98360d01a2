package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// maxRecordSize bounds a single record payload
const maxRecordSize = 16 << 20

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// A record on disk is
//
//	crc32c(payload) uint32 little endian
//	len(payload)    uvarint
//	payload         Message.Marshal()

// appendRecord frames msg onto buf
func appendRecord(buf []byte, msg *Message) ([]byte, error) {
	payload := msg.Marshal()
	if len(payload) > maxRecordSize {
		return buf, fmt.Errorf("WAL record too large: %d bytes", len(payload))
	}
	buf = binary.LittleEndian.AppendUint32(buf, crc32.Checksum(payload, castagnoli))
	buf = protowire.AppendVarint(buf, uint64(len(payload)))
	return append(buf, payload...), nil
}

// recordReader decodes records from one segment and tracks the offset of
// the end of the last complete record
type recordReader struct {
	r   *bufio.Reader
	off int64
}

func newRecordReader(r io.Reader) *recordReader {
	return &recordReader{r: bufio.NewReader(r)}
}

// next returns the next message. A clean end of segment is io.EOF; a
// record cut short is io.ErrUnexpectedEOF.
func (rr *recordReader) next() (*Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(rr.r, header[:]); err != nil {
		return nil, err
	}
	sum := binary.LittleEndian.Uint32(header[:])

	size, err := binary.ReadUvarint(rr.r)
	if err != nil {
		return nil, truncated(err)
	}
	if size > maxRecordSize {
		return nil, fmt.Errorf("%w: record length %d", ErrWALCorrupted, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(rr.r, payload); err != nil {
		return nil, truncated(err)
	}
	if got := crc32.Checksum(payload, castagnoli); got != sum {
		return nil, fmt.Errorf("%w: checksum %08x, want %08x", ErrWALCorrupted, got, sum)
	}

	msg := &Message{}
	if err := msg.Unmarshal(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWALCorrupted, err)
	}
	rr.off += int64(len(header)) + int64(protowire.SizeVarint(size)) + int64(size)
	return msg, nil
}

// truncated maps an EOF inside a record to io.ErrUnexpectedEOF
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
