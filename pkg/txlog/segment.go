package txlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// On-disk layout, per spec §6 "Persisted state layout":
//
//	header:  magic(4) version(u16) base_lsn(u64)
//	record*: size(u32) lsn(u64) timestamp_ms(u64) kind(u16) payload(size) crc32c(u32)
//	trailer: last_lsn(u64) event_count(u64)
//
// crc32c covers lsn, timestamp_ms, kind, and payload — not size, so a
// truncated size field is itself detected as a short read rather than a
// checksum mismatch.
const (
	segmentMagic   = uint32(0x504c4f47) // "PLOG"
	segmentVersion = uint16(1)

	headerSize = 4 + 2 + 8
	trailerSize = 8 + 8
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func writeSegmentHeader(w io.Writer, baseLSN uint64) error {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], segmentMagic)
	binary.BigEndian.PutUint16(buf[4:6], segmentVersion)
	binary.BigEndian.PutUint64(buf[6:14], baseLSN)
	_, err := w.Write(buf)
	return err
}

func readSegmentHeader(r io.Reader) (baseLSN uint64, err error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != segmentMagic {
		return 0, fmt.Errorf("bad segment magic %x", magic)
	}
	version := binary.BigEndian.Uint16(buf[4:6])
	if version != segmentVersion {
		return 0, fmt.Errorf("unsupported segment version %d", version)
	}
	return binary.BigEndian.Uint64(buf[6:14]), nil
}

// encodeRecord serializes ev as a length-prefixed, checksummed record.
func encodeRecord(ev Event) []byte {
	payload := ev.Payload
	body := make([]byte, 8+8+2+len(payload))
	binary.BigEndian.PutUint64(body[0:8], ev.LSN)
	binary.BigEndian.PutUint64(body[8:16], uint64(ev.TimestampMs))
	binary.BigEndian.PutUint16(body[16:18], uint16(ev.Kind))
	copy(body[18:], payload)

	sum := crc32.Checksum(body, crcTable)

	rec := make([]byte, 4+len(body)+4)
	binary.BigEndian.PutUint32(rec[0:4], uint32(len(payload)))
	copy(rec[4:], body)
	binary.BigEndian.PutUint32(rec[4+len(body):], sum)
	return rec
}

// readRecord reads one record from r. io.EOF means a clean end of
// segment; any other error means a truncated or corrupt tail record,
// which replay treats as "nothing more to recover" rather than fatal.
func readRecord(r *bufio.Reader) (Event, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return Event{}, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])

	body := make([]byte, 8+8+2+int(size))
	if _, err := io.ReadFull(r, body); err != nil {
		return Event{}, io.ErrUnexpectedEOF
	}

	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return Event{}, io.ErrUnexpectedEOF
	}
	want := binary.BigEndian.Uint32(crcBuf[:])
	got := crc32.Checksum(body, crcTable)
	if want != got {
		return Event{}, fmt.Errorf("record checksum mismatch: want %x got %x", want, got)
	}

	ev := Event{
		LSN:         binary.BigEndian.Uint64(body[0:8]),
		TimestampMs: int64(binary.BigEndian.Uint64(body[8:16])),
		Kind:        EventKind(binary.BigEndian.Uint16(body[16:18])),
	}
	if size > 0 {
		ev.Payload = append([]byte(nil), body[18:]...)
	}
	return ev, nil
}

func writeTrailer(w io.Writer, lastLSN, count uint64) error {
	buf := make([]byte, trailerSize)
	binary.BigEndian.PutUint64(buf[0:8], lastLSN)
	binary.BigEndian.PutUint64(buf[8:16], count)
	_, err := w.Write(buf)
	return err
}

func fsync(f *os.File) error {
	return f.Sync()
}
