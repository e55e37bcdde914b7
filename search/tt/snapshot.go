package tt

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cespare/xxhash"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

var (
	ErrSnapshotFormat   = errors.New("not a transposition table snapshot")
	ErrSnapshotChecksum = errors.New("transposition table snapshot checksum mismatch")
	ErrSnapshotTooLarge = errors.New("transposition table snapshot does not fit the table")
)

const (
	snapshotMagic   = 0x3130545a5442494b // "KIBTZT01"
	snapshotVersion = 1
	// bounds how much a corrupt header can make us allocate
	maxSnapshotBucketLog2 = 32
	// records are decoded this many at a time, so a short stream fails
	// before a large buffer is allocated
	snapshotChunk = 4096
)

type snapshotHeader struct {
	Magic      uint64
	Version    uint32
	BucketLog2 uint32
	Ways       uint32
	Age        uint32
	Count      uint64
}

type snapshotRecord struct {
	Slot uint64
	Hash uint64
	Data uint64
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// WriteTo writes every non-empty way as a zstd-compressed snapshot. It must
// not run concurrently with stores.
func (t *TranspositionTable) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	enc, err := zstd.NewWriter(cw)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(enc)
	digest := xxhash.New()
	out := io.MultiWriter(bw, digest)

	var records []snapshotRecord
	for i := range t.slots {
		h, d := t.slots[i].load()
		if dataBound(d) == NoBound {
			continue
		}
		records = append(records, snapshotRecord{Slot: uint64(i), Hash: h, Data: d})
	}
	hdr := snapshotHeader{
		Magic:      snapshotMagic,
		Version:    snapshotVersion,
		BucketLog2: uint32(t.bucketLog2),
		Ways:       Ways,
		Age:        uint32(t.Age()),
		Count:      uint64(len(records)),
	}
	if err := binary.Write(out, binary.LittleEndian, hdr); err != nil {
		enc.Close()
		return cw.n, err
	}
	if err := binary.Write(out, binary.LittleEndian, records); err != nil {
		enc.Close()
		return cw.n, err
	}
	if err := binary.Write(bw, binary.LittleEndian, digest.Sum64()); err != nil {
		enc.Close()
		return cw.n, err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return cw.n, err
	}
	if err := enc.Close(); err != nil {
		return cw.n, err
	}
	log.Debug().Int("entries", len(records)).Int64("bytes", cw.n).Msg("tt-snapshot-written")
	return cw.n, nil
}

// ReadFrom replaces the table's contents with a snapshot. A snapshot taken
// from a table of the same shape is restored way for way; otherwise its
// entries are re-stored under the table's policy. A snapshot holding more
// entries than the table's capacity is rejected with ErrSnapshotTooLarge. On
// error the table is left untouched. It must not run concurrently with probes or stores.
func (t *TranspositionTable) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	dec, err := zstd.NewReader(cr)
	if err != nil {
		return 0, err
	}
	defer dec.Close()
	digest := xxhash.New()
	in := io.TeeReader(dec, digest)

	var hdr snapshotHeader
	if err := binary.Read(in, binary.LittleEndian, &hdr); err != nil {
		return cr.n, fmt.Errorf("%w: %w", ErrSnapshotFormat, err)
	}
	if hdr.Magic != snapshotMagic || hdr.Version != snapshotVersion || hdr.Ways != Ways ||
		hdr.BucketLog2 > maxSnapshotBucketLog2 || hdr.Count > uint64(Ways)<<hdr.BucketLog2 {
		return cr.n, fmt.Errorf("%w: bad header %+v", ErrSnapshotFormat, hdr)
	}
	if hdr.Count > uint64(t.Capacity()) {
		return cr.n, fmt.Errorf("%w: %d entries, capacity %d", ErrSnapshotTooLarge, hdr.Count, t.Capacity())
	}
	records := make([]snapshotRecord, 0, min(hdr.Count, snapshotChunk))
	chunk := make([]snapshotRecord, min(hdr.Count, snapshotChunk))
	for left := hdr.Count; left > 0; {
		n := min(left, snapshotChunk)
		if err := binary.Read(in, binary.LittleEndian, chunk[:n]); err != nil {
			return cr.n, fmt.Errorf("%w: %w", ErrSnapshotFormat, err)
		}
		records = append(records, chunk[:n]...)
		left -= n
	}
	want := digest.Sum64()
	var got uint64
	if err := binary.Read(dec, binary.LittleEndian, &got); err != nil {
		return cr.n, fmt.Errorf("%w: %w", ErrSnapshotFormat, err)
	}
	if got != want {
		return cr.n, ErrSnapshotChecksum
	}

	t.Clear()
	age := uint8(hdr.Age & ageMask)
	t.age.Store(uint32(age))
	sameShape := int(hdr.BucketLog2) == t.bucketLog2
	if !sameShape {
		log.Warn().Uint32("snapshot-bucket-log2", hdr.BucketLog2).Int("table-bucket-log2", t.bucketLog2).
			Msg("tt-snapshot-shape-mismatch-restoring-entry-by-entry")
	}
	for _, rec := range records {
		if dataBound(rec.Data) == NoBound {
			continue
		}
		if sameShape && rec.Slot < uint64(len(t.slots)) {
			t.slots[rec.Slot].set(rec.Hash, rec.Data)
			t.used.Add(1)
			continue
		}
		t.storeData(rec.Hash, rec.Data, age)
	}
	log.Info().Uint64("entries", hdr.Count).Int("used", t.Size()).Msg("tt-snapshot-loaded")
	return cr.n, nil
}

// SaveFile writes a snapshot next to path and renames it into place.
func (t *TranspositionTable) SaveFile(path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := t.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	err = retry.Do(
		func() error {
			return os.Rename(tmp, path)
		},
		retry.Attempts(4),
		retry.Delay(20*time.Millisecond),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			log.Err(err).Uint("n", n).Str("path", path).Msg("tt-snapshot-rename-failed-try-again")
			return retry.BackOffDelay(n, err, config)
		}),
	)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (t *TranspositionTable) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = t.ReadFrom(bufio.NewReader(f))
	return err
}
