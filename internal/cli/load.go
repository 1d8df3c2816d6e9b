package cli

import (
	"bufio"
	"errors"
	"io"

	"github.com/princepp/princepp/internal/prince"
)

// LoadWords reads newline-delimited words from r, strips trailing "\r"/"\n"
// (bufio.Scanner's default line split already does this), and adds each
// surviving line to table. Lines outside [prince.LenMin, prince.LenMax] are
// silently discarded — BucketTable.Add reports those as ErrWordTooShort or
// ErrWordTooLong, which are the only errors LoadWords treats as non-fatal.
// A line longer than the scanner's 64 KiB buffer is not discarded: loading
// stops there and bufio.ErrTooLong is returned.
//
// Returns the number of words actually added.
func LoadWords(r io.Reader, table *prince.BucketTable) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), prince.LenMax+2)

	added := 0

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if err := table.Add(line); err != nil {
			if errors.Is(err, prince.ErrWordTooShort) || errors.Is(err, prince.ErrWordTooLong) {
				continue
			}

			return added, err
		}

		added++
	}

	if err := scanner.Err(); err != nil {
		return added, err
	}

	return added, nil
}
