// Package eventlog records the append-only event stream the simulator
// emits: arrivals, completions, swaps, and sacrifices, each timestamped and
// tagged with the batch in which it occurred.
package eventlog

import "fmt"

// Type is the closed set of event kinds the simulator can emit.
type Type string

const (
	TypeArrival    Type = "arrival"
	TypeCompletion Type = "completion"
	TypeSwapOut    Type = "swap_out"
	TypeSwapIn     Type = "swap_in"
	TypeSacrifice  Type = "sacrifice"
)

// Event is one entry in the log: a timestamped, request-scoped occurrence
// with an opaque details string for human-readable context.
type Event struct {
	Time    float64
	BatchID int64
	Type    Type
	ReqID   int64
	Details string
}

// Log is an ordered, append-only sequence of Events.
type Log struct {
	Events []Event
}

// New creates an empty Log.
func New() *Log {
	return &Log{}
}

// Record appends an event to the log.
func (l *Log) Record(time float64, batchID int64, typ Type, reqID int64, details string) {
	l.Events = append(l.Events, Event{
		Time:    time,
		BatchID: batchID,
		Type:    typ,
		ReqID:   reqID,
		Details: details,
	})
}

// Arrival records an arrival event with prefill/decode length context.
func (l *Log) Arrival(time float64, batchID, reqID int64, prefillLength, decodeLength int) {
	l.Record(time, batchID, TypeArrival, reqID,
		fmt.Sprintf("prefill_length=%d decode_length=%d", prefillLength, decodeLength))
}

// Completion records a completion event with total delay context.
func (l *Log) Completion(time float64, batchID, reqID int64, totalDelay float64) {
	l.Record(time, batchID, TypeCompletion, reqID, fmt.Sprintf("total_delay=%.6f", totalDelay))
}

// SwapOut records a swap-out event with the decode position and memory
// freed at the moment of eviction.
func (l *Log) SwapOut(time float64, batchID, reqID int64, decodePosition, memoryFreed int) {
	l.Record(time, batchID, TypeSwapOut, reqID,
		fmt.Sprintf("decode_position=%d memory_freed=%d", decodePosition, memoryFreed))
}

// SwapIn records a swap-in event.
func (l *Log) SwapIn(time float64, batchID, reqID int64) {
	l.Record(time, batchID, TypeSwapIn, reqID, "")
}

// Sacrifice records a sacrifice event with the decode position lost and
// memory freed.
func (l *Log) Sacrifice(time float64, batchID, reqID int64, decodePosition, memoryFreed int) {
	l.Record(time, batchID, TypeSacrifice, reqID,
		fmt.Sprintf("decode_position=%d memory_freed=%d", decodePosition, memoryFreed))
}
