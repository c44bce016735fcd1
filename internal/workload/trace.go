package workload

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Luoxiaogan/vllm-simulation/internal/request"
)

// TraceError wraps a malformed trace row or file problem, distinguishing it
// from a configuration error or an invariant violation (spec.md §7).
type TraceError struct {
	Path string
	Row  int
	Msg  string
}

func (e *TraceError) Error() string {
	return fmt.Sprintf("trace error in %s at row %d: %s", e.Path, e.Row, e.Msg)
}

// LoadTrace reads a header-bearing CSV with columns
// arrival_time, prefill_length, decode_length. Rows whose decode_length
// exceeds decodeLengthCeiling are dropped if decodeLengthCeiling > 0. Rows
// are assigned req_id in the order they end up in after sorting by arrival
// time (non-monotone traces are silently re-sorted, never rejected).
func LoadTrace(path string, decodeLengthCeiling int) ([]*request.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &TraceError{Path: path, Row: 0, Msg: err.Error()}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, &TraceError{Path: path, Row: 0, Msg: err.Error()}
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, &TraceError{Path: path, Row: 0, Msg: err.Error()}
	}

	var reqs []*request.Request
	rowNum := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &TraceError{Path: path, Row: rowNum, Msg: err.Error()}
		}
		rowNum++

		arrival, perr := strconv.ParseFloat(row[cols.arrival], 64)
		if perr != nil {
			return nil, &TraceError{Path: path, Row: rowNum, Msg: "non-numeric arrival_time: " + row[cols.arrival]}
		}
		prefill, perr := strconv.Atoi(row[cols.prefill])
		if perr != nil {
			return nil, &TraceError{Path: path, Row: rowNum, Msg: "non-numeric prefill_length: " + row[cols.prefill]}
		}
		decode, perr := strconv.Atoi(row[cols.decode])
		if perr != nil {
			return nil, &TraceError{Path: path, Row: rowNum, Msg: "non-numeric decode_length: " + row[cols.decode]}
		}

		if decodeLengthCeiling > 0 && decode > decodeLengthCeiling {
			continue
		}
		reqs = append(reqs, request.New(0, arrival, prefill, decode))
	}

	if len(reqs) == 0 {
		return nil, nil
	}

	if !sort.SliceIsSorted(reqs, func(i, j int) bool { return reqs[i].ArrivalTime < reqs[j].ArrivalTime }) {
		logrus.Warnf("trace %s: arrival times are not non-decreasing; re-sorting", path)
	}
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].ArrivalTime < reqs[j].ArrivalTime })
	for i, r := range reqs {
		r.ID = int64(i)
	}
	return reqs, nil
}

type columns struct {
	arrival, prefill, decode int
}

func columnIndex(header []string) (columns, error) {
	idx := map[string]int{}
	for i, h := range header {
		idx[h] = i
	}
	var cols columns
	var ok bool
	if cols.arrival, ok = idx["arrival_time"]; !ok {
		return cols, fmt.Errorf("missing column %q", "arrival_time")
	}
	if cols.prefill, ok = idx["prefill_length"]; !ok {
		return cols, fmt.Errorf("missing column %q", "prefill_length")
	}
	if cols.decode, ok = idx["decode_length"]; !ok {
		return cols, fmt.Errorf("missing column %q", "decode_length")
	}
	return cols, nil
}
