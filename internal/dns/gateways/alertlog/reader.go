package alertlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// ReadFile loads every parseable record from the alert log at path.
// A missing or empty file yields no records and no error.
func ReadFile(path string) ([]domain.AlertRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open alert log %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// maxLineSize bounds one alert line. Longer lines are corrupt and skipped.
const maxLineSize = 64 * 1024

// Read parses alert lines from r. Lines that are short, oversized, or carry
// an unparseable time or entropy are skipped.
func Read(r io.Reader) ([]domain.AlertRecord, error) {
	var out []domain.AlertRecord
	br := bufio.NewReaderSize(r, maxLineSize)
	for {
		line, isPrefix, err := br.ReadLine()
		if isPrefix {
			for isPrefix && err == nil {
				_, isPrefix, err = br.ReadLine()
			}
		} else if len(line) > 0 {
			if rec, perr := domain.ParseAlertLine(string(line)); perr == nil {
				out = append(out, rec)
			}
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read alert log: %w", err)
		}
	}
}

// Newest returns records ordered most recent time of day first, keeping file
// order for ties. A positive limit truncates the result.
func Newest(records []domain.AlertRecord, limit int) []domain.AlertRecord {
	out := make([]domain.AlertRecord, len(records))
	copy(out, records)
	// reverse first so equal times keep the later line on top
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Clock() > out[j].Clock()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
