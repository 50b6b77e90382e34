package txlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DefaultSegmentBytes is the default segment rotation size (spec §6: 64 MiB).
const DefaultSegmentBytes = 64 * 1024 * 1024

type segmentInfo struct {
	path    string
	baseLSN uint64
}

// FileLog is the durable, segmented, fsync-backed transaction log backend.
// One append stream per process (spec §5 "singly-written"); readers stream
// independently via Stream.
type FileLog struct {
	mu sync.Mutex

	dir          string
	segmentBytes int64

	segments []segmentInfo

	current      *os.File
	currentBase  uint64
	currentSize  int64
	currentCount uint64

	lastLSN   uint64
	trimFloor uint64
}

// Open opens (or creates) a segmented log rooted at dir, replaying every
// existing segment to recover lastLSN and the trim floor.
func Open(dir string, segmentBytes int64) (*FileLog, error) {
	if segmentBytes <= 0 {
		segmentBytes = DefaultSegmentBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("txlog: create dir: %w", err)
	}

	l := &FileLog{dir: dir, segmentBytes: segmentBytes}
	if err := l.discoverSegments(); err != nil {
		return nil, err
	}
	if err := l.replay(); err != nil {
		return nil, err
	}
	if err := l.openForAppend(); err != nil {
		return nil, err
	}
	return l, nil
}

func segmentPath(dir string, baseLSN uint64) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%020d.log", baseLSN))
}

func (l *FileLog) discoverSegments() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("txlog: read dir: %w", err)
	}
	var segs []segmentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var base uint64
		if _, err := fmt.Sscanf(e.Name(), "segment-%d.log", &base); err != nil {
			continue
		}
		segs = append(segs, segmentInfo{path: filepath.Join(l.dir, e.Name()), baseLSN: base})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].baseLSN < segs[j].baseLSN })
	l.segments = segs
	return nil
}

// replay reads every existing segment to recover lastLSN. It is
// deliberately tolerant of a truncated final record, which represents a
// crash mid-append; everything durably fsynced before the crash is kept,
// nothing after it is replayed (spec §4.2 "replay yields byte-identical
// state... re-establishes the pre-crash committed state exactly").
func (l *FileLog) replay() error {
	for _, seg := range l.segments {
		f, err := os.Open(seg.path)
		if err != nil {
			return fmt.Errorf("txlog: open segment %s: %w", seg.path, err)
		}
		br := bufio.NewReader(f)
		if _, err := readSegmentHeader(br); err != nil {
			f.Close()
			return fmt.Errorf("txlog: bad header in %s: %w", seg.path, err)
		}
		for {
			ev, err := readRecord(br)
			if err != nil {
				break
			}
			if ev.LSN > l.lastLSN {
				l.lastLSN = ev.LSN
			}
			if ev.Kind == EventTrimmed {
				if p, ok := decodeTrimmed(ev.Payload); ok && p.UpToLSN > l.trimFloor {
					l.trimFloor = p.UpToLSN
				}
			}
		}
		f.Close()
	}
	return nil
}

func decodeTrimmed(payload []byte) (TrimmedPayload, bool) {
	var p TrimmedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return TrimmedPayload{}, false
	}
	return p, true
}

func (l *FileLog) openForAppend() error {
	if len(l.segments) == 0 {
		return l.rotate(l.lastLSN + 1)
	}
	last := l.segments[len(l.segments)-1]
	f, err := os.OpenFile(last.path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("txlog: reopen segment %s: %w", last.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.current = f
	l.currentBase = last.baseLSN
	l.currentSize = info.Size()
	return nil
}

// rotate closes the current segment (if any) writing its trailer, then
// opens a fresh one starting at baseLSN.
func (l *FileLog) rotate(baseLSN uint64) error {
	if l.current != nil {
		_ = writeTrailer(l.current, l.lastLSN, l.currentCount)
		if err := fsync(l.current); err != nil {
			return err
		}
		l.current.Close()
	}

	path := segmentPath(l.dir, baseLSN)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("txlog: create segment %s: %w", path, err)
	}
	if err := writeSegmentHeader(f, baseLSN); err != nil {
		f.Close()
		return err
	}
	if err := fsync(f); err != nil {
		f.Close()
		return err
	}

	l.current = f
	l.currentBase = baseLSN
	l.currentSize = headerSize
	l.currentCount = 0
	l.segments = append(l.segments, segmentInfo{path: path, baseLSN: baseLSN})
	return nil
}

func (l *FileLog) Append(ctx context.Context, kind EventKind, payload []byte) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastLSN++
	ev := Event{
		LSN:         l.lastLSN,
		TimestampMs: time.Now().UnixMilli(),
		Kind:        kind,
		Payload:     payload,
	}
	rec := encodeRecord(ev)

	if l.currentSize+int64(len(rec)) > l.segmentBytes && l.currentSize > headerSize {
		if err := l.rotate(ev.LSN); err != nil {
			l.lastLSN--
			return Event{}, err
		}
	}

	if _, err := l.current.Write(rec); err != nil {
		l.lastLSN--
		return Event{}, fmt.Errorf("txlog: append: %w", err)
	}
	if err := fsync(l.current); err != nil {
		l.lastLSN--
		return Event{}, fmt.Errorf("txlog: fsync: %w", err)
	}
	l.currentSize += int64(len(rec))
	l.currentCount++

	return ev, nil
}

func (l *FileLog) Stream(ctx context.Context, fromLSN uint64, fn func(Event) error) error {
	l.mu.Lock()
	segs := append([]segmentInfo(nil), l.segments...)
	l.mu.Unlock()

	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.Open(seg.path)
		if err != nil {
			return fmt.Errorf("txlog: open segment %s: %w", seg.path, err)
		}
		br := bufio.NewReader(f)
		if _, err := readSegmentHeader(br); err != nil {
			f.Close()
			return fmt.Errorf("txlog: bad header in %s: %w", seg.path, err)
		}
		for {
			ev, err := readRecord(br)
			if err != nil {
				break
			}
			if ev.LSN < fromLSN {
				continue
			}
			if err := fn(ev); err != nil {
				f.Close()
				return err
			}
		}
		f.Close()
	}
	return nil
}

func (l *FileLog) LastLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLSN
}

func (l *FileLog) TrimFloor() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trimFloor
}

// TrimBefore removes whole segments that lie entirely below floor and
// appends a Trimmed event recording the new floor. A segment that
// straddles the floor is kept in full — segments are the unit of
// reclamation, not individual records.
func (l *FileLog) TrimBefore(ctx context.Context, floor uint64) error {
	l.mu.Lock()
	if floor < l.trimFloor {
		l.mu.Unlock()
		return fmt.Errorf("txlog: trim floor %d behind current floor %d", floor, l.trimFloor)
	}

	var kept []segmentInfo
	for i, seg := range l.segments {
		isLast := i == len(l.segments)-1
		nextBase := floor
		if !isLast {
			nextBase = l.segments[i+1].baseLSN
		}
		if !isLast && nextBase <= floor {
			if err := os.Remove(seg.path); err != nil && !os.IsNotExist(err) {
				l.mu.Unlock()
				return fmt.Errorf("txlog: remove segment %s: %w", seg.path, err)
			}
			continue
		}
		kept = append(kept, seg)
	}
	l.segments = kept
	l.trimFloor = floor
	l.mu.Unlock()

	payload, _ := json.Marshal(TrimmedPayload{UpToLSN: floor})
	_, err := l.Append(ctx, EventTrimmed, payload)
	return err
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	_ = writeTrailer(l.current, l.lastLSN, l.currentCount)
	if err := fsync(l.current); err != nil {
		return err
	}
	return l.current.Close()
}
