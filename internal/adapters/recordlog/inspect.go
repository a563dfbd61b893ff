package recordlog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Summary describes a CSV record log found on disk.
type Summary struct {
	Path    string
	Rows    int
	LastSeq uint64
	// TornTail is set when the file ends with a partially written row, the
	// only damage a crash can leave behind.
	TornTail bool
	Gaps     int
}

// Inspect scans a CSV record log and reports what it holds. A torn final row
// is reported rather than treated as corruption.
func Inspect(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Path: path}

	complete := data
	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		sum.TornTail = true
		complete = data[:i+1]
	}

	records, err := csv.NewReader(bytes.NewReader(complete)).ReadAll()
	if err != nil {
		return sum, fmt.Errorf("inspect %s: %w", path, err)
	}
	if len(records) == 0 {
		return sum, fmt.Errorf("inspect %s: missing header row", path)
	}
	if len(records[0]) == 0 || records[0][0] != Header[0] {
		return sum, fmt.Errorf("inspect %s: unexpected header %v", path, records[0])
	}

	for _, rec := range records[1:] {
		seq, err := strconv.ParseUint(rec[0], 10, 64)
		if err != nil {
			return sum, fmt.Errorf("inspect %s: row %d: bad sequence %q", path, sum.Rows+1, rec[0])
		}
		if seq != sum.LastSeq+1 {
			sum.Gaps++
		}
		sum.LastSeq = seq
		sum.Rows++
	}
	return sum, nil
}
