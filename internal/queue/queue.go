// Package queue implements the priority, FIFO-within-priority HTTP dispatch
// queue: a single shared structure with at most one active drain, issuing
// outbound POSTs to the dashboard API.
package queue

import (
	"bytes"
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Semantic priority tiers, lower dispatches first.
const (
	PriorityMessages  = 10
	PriorityNeighbors = 20
	PriorityTraces    = 25
	PriorityPositions = 30
	PriorityTelemetry = 40
	PriorityNodes     = 50
	PriorityDefault   = 90
)

const postTimeout = 10 * time.Second

type entry struct {
	priority int
	seq      int64
	path     string
	body     any
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)         { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Poster issues the outbound HTTP POST. Queue calls it outside the lock so a
// slow dashboard never blocks enqueuers.
type Poster interface {
	Post(ctx context.Context, path string, body any) error
}

// Queue is the single shared priority dispatch structure described in
// section 4.4: one mutex, a monotonic sequence counter, and an "active"
// flag ensuring only one goroutine ever drains at a time.
type Queue struct {
	mu      sync.Mutex
	heap    entryHeap
	active  bool
	nextSeq int64

	poster Poster
}

// New constructs a Queue that posts through poster.
func New(poster Poster) *Queue {
	return &Queue{poster: poster}
}

// Enqueue pushes (path, body) at priority. If a drain is already in
// progress the call returns immediately; otherwise this goroutine becomes
// the (sole) drain worker until the queue empties.
func (q *Queue) Enqueue(ctx context.Context, path string, body any, priority int) {
	q.mu.Lock()
	q.nextSeq++
	heap.Push(&q.heap, entry{priority: priority, seq: q.nextSeq, path: path, body: body})
	if q.active {
		q.mu.Unlock()
		return
	}
	q.active = true
	q.mu.Unlock()

	q.drain(ctx)
}

func (q *Queue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.heap.Len() == 0 {
			q.active = false
			q.mu.Unlock()
			return
		}
		next := heap.Pop(&q.heap).(entry)
		q.mu.Unlock()

		if err := q.poster.Post(ctx, next.path, next.body); err != nil {
			log.Warn("dashboard post failed, discarding", "path", next.path, "err", err)
		}
	}
}

// Len reports the number of entries currently waiting (for tests/metrics).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// HTTPPoster is the real Poster used in production: it issues a browser-like
// POST to <baseURL><path>, matching the dashboard's proxy header
// requirements. When baseURL is empty, Post is a silent no-op.
type HTTPPoster struct {
	Client   *http.Client
	BaseURL  string
	APIToken string
}

// NewHTTPPoster builds a poster bound to baseURL with a 10s-timeout client.
func NewHTTPPoster(baseURL, apiToken string) *HTTPPoster {
	return &HTTPPoster{
		Client:   &http.Client{Timeout: postTimeout},
		BaseURL:  baseURL,
		APIToken: apiToken,
	}
}

func (p *HTTPPoster) Post(ctx context.Context, path string, body any) error {
	if p.BaseURL == "" {
		return nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling record for %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Origin", p.BaseURL)
	req.Header.Set("Referer", p.BaseURL)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	if p.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIToken)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("posting to %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}
