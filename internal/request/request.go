// Package request models a single inference request's lifecycle: identity,
// arrival, prefill/decode progress, and the append-only swap/sacrifice
// histories a preemption policy leaves behind.
package request

// Status is the request's position in the scheduler's state machine.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusRunning   Status = "RUNNING"
	StatusSwapped   Status = "SWAPPED"
	StatusCompleted Status = "COMPLETED"
)

// SwapEvent records one swap-out/swap-in cycle for a request preempted in
// swap mode. SwapInTime is nil until the request is re-admitted from SWAPPED.
type SwapEvent struct {
	SwapOutTime    float64
	SwapInTime     *float64
	DecodePosition int
	MemorySize     int
}

// SacrificeEvent records one sacrifice (discard decode progress, return to
// the head of WAITING). RunningCountSamePosition and TotalRunningCount are
// contextual snapshots taken at sacrifice time, used offline to recover
// conditional preemption probabilities.
type SacrificeEvent struct {
	Time                     float64
	DecodePosition           int
	MemoryFreed              int
	RunningCountSamePosition int
	TotalRunningCount        int
}

// Request is a single request's full lifecycle record.
type Request struct {
	ID            int64
	ArrivalTime   float64
	PrefillLength int
	DecodeLength  int

	Status                Status
	CurrentDecodePosition int

	EnterRunningTimes []float64
	ExitRunningTimes  []float64
	CompletionTime    *float64

	SwapEvents      []SwapEvent
	SacrificeEvents []SacrificeEvent
}

// New creates a request in WAITING with zeroed progress.
func New(id int64, arrivalTime float64, prefillLength, decodeLength int) *Request {
	return &Request{
		ID:            id,
		ArrivalTime:   arrivalTime,
		PrefillLength: prefillLength,
		DecodeLength:  decodeLength,
		Status:        StatusWaiting,
	}
}

// MemoryRequirement is the number of tokens needed to seat this request in
// RUNNING: prefill tokens plus whatever decode progress it has already made.
// It monotonically increases between sacrifices (which reset it to the
// prefill length alone).
func (r *Request) MemoryRequirement() int {
	return r.PrefillLength + r.CurrentDecodePosition
}

// CurrentMemoryUsage is the GPU token footprint of this request: its memory
// requirement while RUNNING, zero otherwise (SWAPPED requests occupy CPU).
func (r *Request) CurrentMemoryUsage() int {
	if r.Status == StatusRunning {
		return r.MemoryRequirement()
	}
	return 0
}

// IsCompleted reports whether decode has produced at least DecodeLength
// tokens.
func (r *Request) IsCompleted() bool {
	return r.CurrentDecodePosition >= r.DecodeLength
}

// RemainingDecodeLength is how many decode steps remain, floored at zero.
func (r *Request) RemainingDecodeLength() int {
	remaining := r.DecodeLength - r.CurrentDecodePosition
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TotalDelay is end-to-end latency (completion - arrival), nil until
// completed.
func (r *Request) TotalDelay() *float64 {
	if r.CompletionTime == nil {
		return nil
	}
	delay := *r.CompletionTime - r.ArrivalTime
	return &delay
}

// WaitingTime is the time between arrival and the first entry into RUNNING,
// nil if the request has never run.
func (r *Request) WaitingTime() *float64 {
	if len(r.EnterRunningTimes) == 0 {
		return nil
	}
	w := r.EnterRunningTimes[0] - r.ArrivalTime
	return &w
}

// ExecutionTime spans the first entry into RUNNING to completion, nil
// unless both have happened.
func (r *Request) ExecutionTime() *float64 {
	if r.CompletionTime == nil || len(r.EnterRunningTimes) == 0 {
		return nil
	}
	e := *r.CompletionTime - r.EnterRunningTimes[0]
	return &e
}

// SwapCount is the number of times this request has been swapped out.
func (r *Request) SwapCount() int {
	return len(r.SwapEvents)
}

// SacrificeCount is the number of times this request has been sacrificed.
func (r *Request) SacrificeCount() int {
	return len(r.SacrificeEvents)
}

// TotalSwappedTime sums the duration of completed swap cycles (those with a
// non-nil SwapInTime); an in-flight swap-out contributes nothing until it
// resolves.
func (r *Request) TotalSwappedTime() float64 {
	var total float64
	for _, ev := range r.SwapEvents {
		if ev.SwapInTime != nil {
			total += *ev.SwapInTime - ev.SwapOutTime
		}
	}
	return total
}
