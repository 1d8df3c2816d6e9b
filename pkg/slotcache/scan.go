package slotcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
)

// ScanOptions controls scan iteration behavior.
type ScanOptions struct {
	// Filter is called for each candidate entry. Only entries where Filter
	// returns true are included in results. If nil, all entries match.
	//
	// The Entry passed to Filter contains borrowed slices that are only valid
	// for the duration of the call. Do not retain references to Key or Index.
	//
	// Offset and Limit apply after filtering.
	Filter func(Entry) bool

	// Reverse iterates in descending order (newest-to-oldest insertion order).
	Reverse bool

	// Offset is the number of matching entries to skip.
	//
	// Must be >= 0. If Offset exceeds matches, returns empty result.
	Offset int

	// Limit is the maximum number of entries to return.
	//
	// Must be >= 0. Zero means no limit.
	Limit int
}

// Entry represents an entry returned by read operations.
//
// All byte slices are copies that the caller owns and may retain.
type Entry struct {
	// Key is the entry's key bytes (length equals [Options.KeySize]).
	Key []byte

	// Revision is an opaque int64 provided by the caller during [Writer.Put].
	//
	// Typically used to store mtime or a generation number for staleness detection.
	Revision int64

	// Index is the entry's index bytes (length equals [Options.IndexSize]).
	//
	// May be nil if IndexSize is 0.
	Index []byte
}

// Scan returns all live entries in insertion order.
// Scan captures a stable snapshot before returning. If snapshot acquisition
// fails, it returns [ErrBusy] and no results.
//
// Possible errors: [ErrClosed], [ErrBusy], [ErrCorrupt], [ErrInvalidInput], [ErrInvalidated].
func (c *Cache) Scan(opts ScanOptions) ([]Entry, error) {
	c.mu.RLock()
	closed := c.isClosed
	c.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}

	if opts.Offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0, got %d: %w", opts.Offset, ErrInvalidInput)
	}

	if opts.Offset > maxScanOffset {
		return nil, fmt.Errorf("offset %d exceeds max %d: %w", opts.Offset, maxScanOffset, ErrInvalidInput)
	}

	if opts.Limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0, got %d: %w", opts.Limit, ErrInvalidInput)
	}

	if opts.Limit > maxScanLimit {
		return nil, fmt.Errorf("limit %d exceeds max %d: %w", opts.Limit, maxScanLimit, ErrInvalidInput)
	}

	return c.collectEntries(opts, func(_ []byte) bool { return true })
}

// collectEntries collects entries matching the predicate with seqlock retry.
func (c *Cache) collectEntries(opts ScanOptions, match func([]byte) bool) ([]Entry, error) {
	for attempt := range readMaxRetries {
		readBackoff(attempt)

		c.registryEntry.mu.RLock()

		g1 := c.readGeneration()
		if g1%2 == 1 {
			c.registryEntry.mu.RUnlock()

			continue
		}

		// Check for invalidation under stable generation.
		state := binary.LittleEndian.Uint32(c.data[offState:])
		if state == stateInvalidated {
			c.registryEntry.mu.RUnlock()

			return nil, ErrInvalidated
		}

		entries, err := c.doCollect(g1, opts, match)
		g2 := c.readGeneration()
		c.registryEntry.mu.RUnlock()

		if g1 != g2 {
			continue
		}

		return entries, err
	}

	return nil, ErrBusy
}

// doCollect performs the actual slot scan.
// Must be called with registryEntry.mu.RLock held.
//
// The expectedGen parameter is the generation read at the start of the operation.
// When an impossible invariant is detected (e.g., reserved meta bits set), we re-check
// generation to distinguish overlap (errOverlap) from real corruption (ErrCorrupt).
//
// Allocation optimization: We minimize allocations by:
// 1. Borrowing mmap slices directly for filter callbacks (API contract allows this)
// 2. Only allocating owned copies for entries that pass the filter
// 3. Skipping borrowed entry construction entirely when no filter is set.
//
// Early termination optimization: For scans with Limit, we stop scanning
// once we've collected Offset+Limit entries (enough to satisfy the request).
//
// Reverse iteration optimization: For ordered-keys mode with reverse scans,
// we iterate slots in reverse order directly (avoiding slices.Reverse).
func (c *Cache) doCollect(expectedGen uint64, opts ScanOptions, match func([]byte) bool) ([]Entry, error) {
	highwater, hwErr := c.safeSlotHighwater(expectedGen)
	if hwErr != nil {
		return nil, hwErr
	}

	// For ordered-keys mode with reverse scans, iterate backwards directly.
	// This avoids collecting all entries and then reversing.
	if opts.Reverse && c.orderedKeys {
		return c.doCollectReverse(expectedGen, highwater, opts, match)
	}

	entries := make([]Entry, 0)

	keyPad := (8 - (c.keySize % 8)) % 8

	// Early termination: for forward scans with Limit, we only need Offset+Limit entries.
	// For reverse scans in unordered mode, we need all entries since we reverse after collection.
	canTerminateEarly := !opts.Reverse && opts.Limit > 0

	needCount := 0
	if canTerminateEarly {
		needCount = opts.Offset + opts.Limit
	}

	// Order validation for ordered-keys mode: track previous key to verify sorted invariant.
	// Per spec: "For all allocated slot IDs i < j < slot_highwater, slot[i].key <= slot[j].key"
	var prevKey []byte

	for slotID := range highwater {
		slotOffset := c.slotsOffset + slotID*uint64(c.slotSize)

		// Use atomic load for meta to avoid torn reads during concurrent writes.
		meta := atomicLoadUint64(c.data[slotOffset:])

		// Check for reserved bits set (corruption indicator).
		// Per spec: "All other bits are reserved and MUST be zero in v1."
		if meta&slotMetaReservedMask != 0 {
			return nil, c.checkInvariantViolation(expectedGen)
		}

		if (meta & slotMetaUsed) == 0 {
			continue // tombstone
		}

		key := c.data[slotOffset+8 : slotOffset+8+uint64(c.keySize)]

		// Order validation: in ordered-keys mode, keys must be non-decreasing.
		// This check validates the on-disk sorted invariant during scans.
		if c.orderedKeys && prevKey != nil && bytes.Compare(key, prevKey) < 0 {
			return nil, c.checkInvariantViolation(expectedGen)
		}

		prevKey = key

		if !match(key) {
			continue
		}

		revOffset := slotOffset + 8 + uint64(c.keySize) + uint64(keyPad)
		// Use atomic load for revision to avoid torn reads during concurrent writes.
		revision := atomicLoadInt64(c.data[revOffset:])

		// Apply filter if present, using borrowed mmap slices.
		// The API contract states filter receives borrowed slices valid only during the call.
		if opts.Filter != nil {
			var borrowedIndex []byte

			if c.indexSize > 0 {
				idxOffset := revOffset + 8
				// Borrow directly from mmap - no allocation needed for filter.
				borrowedIndex = c.data[idxOffset : idxOffset+uint64(c.indexSize)]
			}

			borrowed := Entry{
				Key:      key,
				Revision: revision,
				Index:    borrowedIndex,
			}

			if !opts.Filter(borrowed) {
				continue
			}
		}

		// Create owned copies for result.
		keyCopy := make([]byte, c.keySize)
		copy(keyCopy, key)

		var indexCopy []byte

		if c.indexSize > 0 {
			idxOffset := revOffset + 8
			indexCopy = make([]byte, c.indexSize)
			copy(indexCopy, c.data[idxOffset:idxOffset+uint64(c.indexSize)])
		}

		entries = append(entries, Entry{
			Key:      keyCopy,
			Revision: revision,
			Index:    indexCopy,
		})

		// Early termination for forward scans with Limit.
		if canTerminateEarly && len(entries) >= needCount {
			break
		}
	}

	if opts.Reverse {
		// Unordered mode: must reverse after collection.
		slices.Reverse(entries)
	}

	start := min(opts.Offset, len(entries))

	end := len(entries)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	return entries[start:end], nil
}

// doCollectReverse performs reverse slot scan for ordered-keys mode.
// Iterates slots in reverse order directly, avoiding the need to collect all
// entries and then reverse. This enables early termination for Limit.
// Must be called with registryEntry.mu.RLock held.
func (c *Cache) doCollectReverse(expectedGen uint64, highwater uint64, opts ScanOptions, match func([]byte) bool) ([]Entry, error) {
	entries := make([]Entry, 0)

	keyPad := (8 - (c.keySize % 8)) % 8

	// Early termination: we only need Offset+Limit entries.
	canTerminateEarly := opts.Limit > 0

	needCount := 0
	if canTerminateEarly {
		needCount = opts.Offset + opts.Limit
	}

	// Order validation for ordered-keys mode: track previous key to verify sorted invariant.
	// When iterating backwards, keys should be non-increasing (current key <= prevKey).
	var prevKey []byte

	// Iterate from highwater-1 down to 0.
	for i := highwater; i > 0; i-- {
		slotID := i - 1
		slotOffset := c.slotsOffset + slotID*uint64(c.slotSize)

		// Use atomic load for meta to avoid torn reads during concurrent writes.
		meta := atomicLoadUint64(c.data[slotOffset:])

		// Check for reserved bits set (corruption indicator).
		if meta&slotMetaReservedMask != 0 {
			return nil, c.checkInvariantViolation(expectedGen)
		}

		if (meta & slotMetaUsed) == 0 {
			continue // tombstone
		}

		key := c.data[slotOffset+8 : slotOffset+8+uint64(c.keySize)]

		// Order validation: in ordered-keys mode, when iterating backwards,
		// keys should be non-increasing (current key <= previous key seen).
		// Note: prevKey holds the key from the *higher* slot ID we saw earlier.
		if prevKey != nil && bytes.Compare(key, prevKey) > 0 {
			return nil, c.checkInvariantViolation(expectedGen)
		}

		prevKey = key

		if !match(key) {
			continue
		}

		revOffset := slotOffset + 8 + uint64(c.keySize) + uint64(keyPad)
		revision := atomicLoadInt64(c.data[revOffset:])

		// Apply filter if present.
		if opts.Filter != nil {
			var borrowedIndex []byte

			if c.indexSize > 0 {
				idxOffset := revOffset + 8
				borrowedIndex = c.data[idxOffset : idxOffset+uint64(c.indexSize)]
			}

			borrowed := Entry{
				Key:      key,
				Revision: revision,
				Index:    borrowedIndex,
			}

			if !opts.Filter(borrowed) {
				continue
			}
		}

		// Create owned copies for result.
		keyCopy := make([]byte, c.keySize)
		copy(keyCopy, key)

		var indexCopy []byte

		if c.indexSize > 0 {
			idxOffset := revOffset + 8
			indexCopy = make([]byte, c.indexSize)
			copy(indexCopy, c.data[idxOffset:idxOffset+uint64(c.indexSize)])
		}

		entries = append(entries, Entry{
			Key:      keyCopy,
			Revision: revision,
			Index:    indexCopy,
		})

		// Early termination when we have enough entries.
		if canTerminateEarly && len(entries) >= needCount {
			break
		}
	}

	// No reversal needed - entries are already in reverse order.

	start := min(opts.Offset, len(entries))

	end := len(entries)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	return entries[start:end], nil
}
