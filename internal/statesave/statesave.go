// Package statesave implements the suspend/resume checkpoint format: a
// CSV body of in-flight (not completed) requests, with header comments
// carrying run metadata, and the arrival-time renormalization a resumed
// run needs on load (spec.md §6).
package statesave

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/Luoxiaogan/vllm-simulation/internal/request"
)

var bodyColumns = []string{
	"req_id", "status", "arrival_time", "prefill_length", "decode_length",
	"current_decode_position", "first_enter_running_time", "completion_time",
	"swap_count", "sacrifice_count",
}

// Save writes waiting/running/swapped requests (completed requests are
// omitted) to path as a commented header plus CSV body.
func Save(path string, waiting, running, swapped []*request.Request, batchID int64, now float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# saved_at_batch: %d\n", batchID)
	fmt.Fprintf(w, "# simulated_time: %f\n", now)
	fmt.Fprintf(w, "# waiting_count: %d\n", len(waiting))
	fmt.Fprintf(w, "# running_count: %d\n", len(running))
	fmt.Fprintf(w, "# swapped_count: %d\n", len(swapped))
	if err := w.Flush(); err != nil {
		return err
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(bodyColumns); err != nil {
		return err
	}
	all := append(append(append([]*request.Request{}, waiting...), running...), swapped...)
	for _, r := range all {
		if err := writer.Write(rowFor(r)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func rowFor(r *request.Request) []string {
	firstEnter := ""
	if len(r.EnterRunningTimes) > 0 {
		firstEnter = strconv.FormatFloat(r.EnterRunningTimes[0], 'f', -1, 64)
	}
	completion := ""
	if r.CompletionTime != nil {
		completion = strconv.FormatFloat(*r.CompletionTime, 'f', -1, 64)
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		string(r.Status),
		strconv.FormatFloat(r.ArrivalTime, 'f', -1, 64),
		strconv.Itoa(r.PrefillLength),
		strconv.Itoa(r.DecodeLength),
		strconv.Itoa(r.CurrentDecodePosition),
		firstEnter,
		completion,
		strconv.Itoa(r.SwapCount()),
		strconv.Itoa(r.SacrificeCount()),
	}
}

// Loaded is the result of Load: the three in-flight containers and the
// simulated time the resumed run should start from.
type Loaded struct {
	Waiting   []*request.Request
	Running   []*request.Request
	Swapped   []*request.Request
	StartTime float64
}

// Load reads a checkpoint written by Save. Arrival times are renormalized
// so the minimum becomes 0, and StartTime is set to max_arrival-min_arrival,
// matching the resumed run's initial simulated clock (spec.md §6).
func Load(path string) (*Loaded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		b, err := reader.Peek(1)
		if err != nil || len(b) == 0 || b[0] != '#' {
			break
		}
		if _, err := reader.ReadString('\n'); err != nil {
			break
		}
	}

	csvReader := csv.NewReader(reader)
	header, err := csvReader.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[h] = i
	}

	var out Loaded
	minArrival := 0.0
	maxArrival := 0.0
	first := true

	for {
		row, err := csvReader.Read()
		if err != nil {
			break
		}
		id, _ := strconv.ParseInt(row[idx["req_id"]], 10, 64)
		status := request.Status(row[idx["status"]])
		arrival, _ := strconv.ParseFloat(row[idx["arrival_time"]], 64)
		prefill, _ := strconv.Atoi(row[idx["prefill_length"]])
		decode, _ := strconv.Atoi(row[idx["decode_length"]])
		decodePos, _ := strconv.Atoi(row[idx["current_decode_position"]])

		r := request.New(id, arrival, prefill, decode)
		r.Status = status
		r.CurrentDecodePosition = decodePos
		if firstEnterStr := row[idx["first_enter_running_time"]]; firstEnterStr != "" {
			v, _ := strconv.ParseFloat(firstEnterStr, 64)
			r.EnterRunningTimes = append(r.EnterRunningTimes, v)
		}

		if first {
			minArrival, maxArrival = arrival, arrival
			first = false
		} else {
			if arrival < minArrival {
				minArrival = arrival
			}
			if arrival > maxArrival {
				maxArrival = arrival
			}
		}

		switch status {
		case request.StatusWaiting:
			out.Waiting = append(out.Waiting, r)
		case request.StatusRunning:
			out.Running = append(out.Running, r)
		case request.StatusSwapped:
			out.Swapped = append(out.Swapped, r)
		}
	}

	for _, group := range [][]*request.Request{out.Waiting, out.Running, out.Swapped} {
		for _, r := range group {
			r.ArrivalTime -= minArrival
		}
	}
	out.StartTime = maxArrival - minArrival
	return &out, nil
}
