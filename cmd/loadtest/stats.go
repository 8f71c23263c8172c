package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

// endpointStats accumulates the outcome of requests to one endpoint.
type endpointStats struct {
	mu            sync.Mutex
	latencies     []time.Duration
	statusCodes   map[int]int
	errors        int
	corrected     int
	emptyResults  int
	totalRequests int
}

func newEndpointStats() *endpointStats {
	return &endpointStats{
		latencies:   make([]time.Duration, 0, 1<<14),
		statusCodes: make(map[int]int),
	}
}

// record stores one request. statusCode 0 with err set means the request
// never got a response.
func (s *endpointStats) record(d time.Duration, statusCode int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests++
	if err != nil {
		s.errors++
		return
	}
	if statusCode < 200 || statusCode >= 300 {
		s.errors++
	}
	s.statusCodes[statusCode]++
	s.latencies = append(s.latencies, d)
}

func (s *endpointStats) recordSearch(substitutions, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if substitutions > 0 {
		s.corrected++
	}
	if total == 0 {
		s.emptyResults++
	}
}

type summary struct {
	Requests  int
	Errors    int
	Corrected int
	Empty     int
	Min       time.Duration
	Avg       time.Duration
	P50       time.Duration
	P90       time.Duration
	P99       time.Duration
	Max       time.Duration
	StdDev    time.Duration
	Codes     map[int]int
}

func (s *endpointStats) summarize() summary {
	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	out := summary{
		Requests:  s.totalRequests,
		Errors:    s.errors,
		Corrected: s.corrected,
		Empty:     s.emptyResults,
		Codes:     make(map[int]int, len(s.statusCodes)),
	}
	for code, n := range s.statusCodes {
		out.Codes[code] = n
	}
	s.mu.Unlock()

	if len(latencies) == 0 {
		return out
	}
	slices.Sort(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	out.Avg = sum / time.Duration(len(latencies))
	out.Min = latencies[0]
	out.Max = latencies[len(latencies)-1]
	out.P50 = percentile(latencies, 50)
	out.P90 = percentile(latencies, 90)
	out.P99 = percentile(latencies, 99)

	var sumSquared float64
	for _, l := range latencies {
		diff := float64(l - out.Avg)
		sumSquared += diff * diff
	}
	out.StdDev = time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
	return out
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func printSummary(w io.Writer, name string, s summary, elapsed time.Duration) {
	fmt.Fprintf(w, "=== %s ===\n", name)
	fmt.Fprintf(w, "Requests:      %d\n", s.Requests)
	fmt.Fprintf(w, "Errors:        %d\n", s.Errors)
	if s.Requests > 0 {
		fmt.Fprintf(w, "Error Rate:    %.2f%%\n", float64(s.Errors)/float64(s.Requests)*100)
		fmt.Fprintf(w, "Requests/sec:  %.2f\n", float64(s.Requests)/elapsed.Seconds())
	}
	if s.Corrected > 0 || s.Empty > 0 {
		fmt.Fprintf(w, "Corrected:     %d\n", s.Corrected)
		fmt.Fprintf(w, "Empty pages:   %d\n", s.Empty)
	}
	if s.Max > 0 {
		fmt.Fprintf(w, "Latency:       min %s  avg %s  p50 %s  p90 %s  p99 %s  max %s  stddev %s\n",
			s.Min, s.Avg, s.P50, s.P90, s.P99, s.Max, s.StdDev)
	}
	codes := make([]int, 0, len(s.Codes))
	for code := range s.Codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.Codes[code])
	}
	fmt.Fprintln(w)
}
