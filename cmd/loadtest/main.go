// Command loadtest drives a searcher with a mix of exact, misspelled and
// paginated queries plus suggestion lookups, then prints latency
// percentiles per endpoint.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -duration 30s -docs D1,D2
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	"whale",
	"white whale",
	"wahle",
	"captain ahab",
	"harpoon ship voyage",
	"pride prejudice",
	"prejudise",
	"elizabeth bennet",
	"best of times",
	"worst of times",
	"sherlock holmes",
	"sherlok",
	"detective mystery london",
	"monster creator",
	"frankenstien",
}

type config struct {
	baseURL       string
	concurrency   int
	duration      time.Duration
	pageSize      int
	maxPage       int
	suggestRatio  float64
	queries       []string
	suggestionIDs []string
}

type searchResponse struct {
	Total         int               `json:"total"`
	Substitutions map[string]string `json:"substitutions"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	pageSize := flag.Int("page-size", 10, "page size of search requests")
	maxPage := flag.Int("max-page", 3, "search pages are drawn from 1..max-page")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in list)")
	docs := flag.String("docs", "", "comma-separated document ids for suggestion requests")
	suggestRatio := flag.Float64("suggest-ratio", 0.2, "share of requests that fetch suggestions when -docs is set")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}
	cfg := config{
		baseURL:      strings.TrimRight(*baseURL, "/"),
		concurrency:  max(1, *concurrency),
		duration:     *duration,
		pageSize:     *pageSize,
		maxPage:      max(1, *maxPage),
		suggestRatio: *suggestRatio,
		queries:      queries,
	}
	if *docs != "" {
		cfg.suggestionIDs = strings.Split(*docs, ",")
	}

	fmt.Println("=== Book Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.baseURL)
	fmt.Printf("Concurrency: %d\n", cfg.concurrency)
	fmt.Printf("Duration:    %s\n", cfg.duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.queries))
	fmt.Printf("Documents:   %d for suggestions\n", len(cfg.suggestionIDs))
	fmt.Println()

	search, suggest, elapsed := run(cfg)
	s := search.summarize()
	printSummary(os.Stdout, "search", s, elapsed)
	total := s.Requests
	if len(cfg.suggestionIDs) > 0 {
		ss := suggest.summarize()
		printSummary(os.Stdout, "suggestions", ss, elapsed)
		total += ss.Requests
	}
	if total == 0 {
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(cfg config) (search, suggest *endpointStats, elapsed time.Duration) {
	search, suggest = newEndpointStats(), newEndpointStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.concurrency; w++ {
		rng := rand.New(rand.NewPCG(uint64(w), uint64(start.UnixNano())))
		g.Go(func() error {
			for ctx.Err() == nil {
				if len(cfg.suggestionIDs) > 0 && rng.Float64() < cfg.suggestRatio {
					id := cfg.suggestionIDs[rng.IntN(len(cfg.suggestionIDs))]
					do(ctx, client, suggest, fmt.Sprintf("%s/api/v1/documents/%s/suggestions", cfg.baseURL, url.PathEscape(id)), nil)
					continue
				}
				q := cfg.queries[rng.IntN(len(cfg.queries))]
				target := fmt.Sprintf("%s/api/v1/search?q=%s&page=%d&page_size=%d",
					cfg.baseURL, url.QueryEscape(q), 1+rng.IntN(cfg.maxPage), cfg.pageSize)
				do(ctx, client, search, target, func(body []byte) {
					var res searchResponse
					if json.Unmarshal(body, &res) == nil {
						search.recordSearch(len(res.Substitutions), res.Total)
					}
				})
			}
			return nil
		})
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	fmt.Print("Running")
	_ = g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return search, suggest, time.Since(start)
}

// do issues one GET and records it unless the run ended while it was in
// flight.
func do(ctx context.Context, client *http.Client, stats *endpointStats, target string, onBody func([]byte)) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		stats.record(0, 0, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	d := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			stats.record(d, 0, err)
		}
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil && ctx.Err() != nil {
		return
	}
	stats.record(d, resp.StatusCode, nil)
	if onBody != nil && resp.StatusCode == http.StatusOK {
		onBody(body)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return out, nil
}
