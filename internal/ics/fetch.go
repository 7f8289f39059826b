package ics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	appLog "github.com/silasm01/calendar-manager/internal/log"
)

const (
	// defaultFetchWorkers bounds the fan-out across remote stores.
	defaultFetchWorkers = 4
	// defaultFetchTimeout caps each individual request; a slow feed counts
	// against pass latency, never against the other feeds.
	defaultFetchTimeout = 10 * time.Second
)

// Request identifies a single document to retrieve. ID is the caller's key
// for the outcome (e.g. "main:family" or "blocked:family:Ronja").
type Request struct {
	ID  string
	URL string
}

// Result is the outcome of fetching one Request. Exactly one of Body/Err is
// meaningful: Err non-nil means the document is unavailable this pass.
type Result struct {
	Request Request
	Body    []byte
	Err     error
}

// Fetcher retrieves calendar documents concurrently with bounded
// parallelism. A failing or slow URL never blocks or fails the others.
type Fetcher struct {
	client  *http.Client
	workers int
}

// NewFetcher creates a Fetcher with the default worker count and timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: defaultFetchTimeout,
		},
		workers: defaultFetchWorkers,
	}
}

// NewFetcherWith creates a Fetcher with explicit worker count and timeout;
// zero values fall back to the defaults.
func NewFetcherWith(workers int, timeout time.Duration) *Fetcher {
	if workers <= 0 {
		workers = defaultFetchWorkers
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		workers: workers,
	}
}

// FetchAll retrieves all requests through a fixed worker pool and returns a
// Result per request ID. Per-URL failures are captured in the Result and
// logged; FetchAll itself never fails.
func (f *Fetcher) FetchAll(ctx context.Context, reqs []Request) map[string]Result {
	results := make(map[string]Result, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	jobs := make(chan Request)
	out := make(chan Result)

	var wg sync.WaitGroup
	workers := f.workers
	if workers > len(reqs) {
		workers = len(reqs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				body, err := f.fetchOne(ctx, req)
				out <- Result{Request: req, Body: body, Err: err}
			}
		}()
	}

	go func() {
		for _, req := range reqs {
			jobs <- req
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	for res := range out {
		if res.Err != nil {
			appLog.Error("ics fetch failed", res.Err, "id", res.Request.ID, "url", redactURL(res.Request.URL))
		}
		results[res.Request.ID] = res
	}

	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, req Request) ([]byte, error) {
	if req.URL == "" {
		return nil, errors.New("request URL is empty")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	appLog.Debug("ics fetch success", "id", req.ID, "url", redactURL(req.URL), "bytes", len(body))
	return body, nil
}

// redactURL hides sensitive parts of a calendar URL for logging purposes.
// Private feed URLs carry capability tokens in their paths.
func redactURL(u string) string {
	// Example:
	//   https://example.com/path/to/private.ics?token=abcd
	// -> https://example.com/...(redacted)
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}

	host := u[:j]
	return host + redactedSuffix
}
