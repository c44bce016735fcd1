package workload

import (
	"math"
	"sort"

	"github.com/Luoxiaogan/vllm-simulation/internal/request"
)

// RequestClass is one (prefill, decode, rate) stream in a multi-class
// Poisson superposition (spec.md §6 trace generator contract).
type RequestClass struct {
	PrefillLength int
	DecodeLength  int
	Rate          float64
}

// GeneratePoisson draws n requests total across classes, with per-class
// counts proportional to rate_i/Σrate (the last class absorbs the integer
// remainder so the total is exact), each class's inter-arrival times i.i.d.
// exponential at its own rate, merged and sorted by arrival time.
// Ground: original_source/data/input/generate_requests_using_type.py.
func GeneratePoisson(classes []RequestClass, n int, seed int64) []*request.Request {
	return generate(classes, n, seed, nil)
}

// GeneratePoissonWithRates is the rate_list override: keeps each class's
// (prefill, decode) pair but substitutes its rate, per spec.md §6.
func GeneratePoissonWithRates(classes []RequestClass, rates []float64, n int, seed int64) []*request.Request {
	return generate(classes, n, seed, rates)
}

func generate(classes []RequestClass, n int, seed int64, overrideRates []float64) []*request.Request {
	if len(classes) == 0 || n <= 0 {
		return nil
	}

	effectiveRates := make([]float64, len(classes))
	for i, c := range classes {
		effectiveRates[i] = c.Rate
	}
	if overrideRates != nil {
		copy(effectiveRates, overrideRates)
	}

	totalRate := 0.0
	for _, r := range effectiveRates {
		totalRate += r
	}

	counts := make([]int, len(classes))
	assigned := 0
	for i := range classes {
		if i == len(classes)-1 {
			counts[i] = n - assigned
			break
		}
		c := int(effectiveRates[i] / totalRate * float64(n))
		counts[i] = c
		assigned += c
	}

	rng := newPartitionedRNG(seed)
	var out []*request.Request
	nextID := int64(0)
	for classIdx, class := range classes {
		stream := rng.forClass(classIdx)
		rate := effectiveRates[classIdx]
		t := 0.0
		for i := 0; i < counts[classIdx]; i++ {
			if rate > 0 {
				t += -math.Log(1-stream.Float64()) / rate
			}
			out = append(out, request.New(nextID, t, class.PrefillLength, class.DecodeLength))
			nextID++
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ArrivalTime < out[j].ArrivalTime
	})
	for i, r := range out {
		r.ID = int64(i)
	}
	return out
}
