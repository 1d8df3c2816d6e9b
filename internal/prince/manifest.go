package prince

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/princepp/princepp/pkg/fs"
)

// Manifest is a one-shot diagnostics snapshot written to --stats-file. It
// carries no state the engine depends on; it exists purely to let an
// operator or another tool inspect how a run's keyspace was shaped.
type Manifest struct {
	RunID         string           `json:"run_id"`
	GeneratedAt   time.Time        `json:"generated_at"`
	PwMin         int              `json:"pw_min"`
	PwMax         int              `json:"pw_max"`
	ElemCntMin    int              `json:"elem_cnt_min"`
	ElemCntMax    int              `json:"elem_cnt_max"`
	WlDistLen     bool             `json:"wl_dist_len"`
	TotalKsCnt    string           `json:"total_ks_cnt"`
	TotalWordsCnt uint64           `json:"total_words_cnt"`
	Lengths       []LengthManifest `json:"lengths"`
}

// LengthManifest summarizes one output length's chain population.
type LengthManifest struct {
	Length     int    `json:"length"`
	ChainCount int    `json:"chain_count"`
	KsCnt      string `json:"ks_cnt"`
}

// BuildManifest summarizes a built engine's chain slots. runID should come
// from NewRunID.
func BuildManifest(e *Engine, runID string) Manifest {
	m := Manifest{
		RunID:         runID,
		GeneratedAt:   time.Now().UTC(),
		PwMin:         e.cfg.PwMin,
		PwMax:         e.cfg.PwMax,
		ElemCntMin:    e.cfg.ElemCntMin,
		ElemCntMax:    e.cfg.ElemCntMax,
		WlDistLen:     e.cfg.WlDistLen,
		TotalWordsCnt: totalWordsCount(e.table, e.cfg.PwMin, e.cfg.PwMax),
	}

	total := IntFromUint64(0)

	for n := e.cfg.PwMin; n <= e.cfg.PwMax; n++ {
		slot, ok := e.byLength[n]
		if !ok {
			continue
		}

		ksCnt := IntFromUint64(0)
		for _, c := range slot.chains {
			ksCnt = ksCnt.Add(c.KsCnt)
		}

		total = total.Add(ksCnt)

		m.Lengths = append(m.Lengths, LengthManifest{
			Length:     n,
			ChainCount: len(slot.chains),
			KsCnt:      ksCnt.String(),
		})
	}

	m.TotalKsCnt = total.String()

	return m
}

// WriteManifest serializes m as indented JSON and writes it atomically to
// path via an [fs.AtomicWriter].
func WriteManifest(w *fs.AtomicWriter, path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	data = append(data, '\n')

	if err := w.WriteWithDefaults(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write manifest %q: %w", path, err)
	}

	return nil
}

const (
	shortIDLength = 12
	crockfordBase = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

// NewRunID generates a time-ordered UUIDv7 and derives a stable 12-char
// Crockford base32 short ID from its random bits, identifying one
// enumeration run.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}

	return shortIDFromUUID(id), nil
}

func shortIDFromUUID(id uuid.UUID) string {
	// UUIDv7 layout (RFC 9562): 48-bit time, 4-bit version, 12-bit rand_a,
	// 2-bit variant, 62-bit rand_b. The high 60 random bits become the ID.
	randA := (uint16(id[6]&0x0f) << 8) | uint16(id[7])
	randB := (uint64(id[8]&0x3f) << 56) |
		(uint64(id[9]) << 48) |
		(uint64(id[10]) << 40) |
		(uint64(id[11]) << 32) |
		(uint64(id[12]) << 24) |
		(uint64(id[13]) << 16) |
		(uint64(id[14]) << 8) |
		uint64(id[15])

	top60 := (uint64(randA) << 48) | (randB >> 14)

	return encodeCrockfordBase32(top60)
}

func encodeCrockfordBase32(value uint64) string {
	var buf [shortIDLength]byte
	for i := shortIDLength - 1; i >= 0; i-- {
		buf[i] = crockfordBase[value&0x1f]
		value >>= 5
	}

	return string(buf[:])
}
