package search

import (
	"sync"
	"time"

	domainsearch "github.com/blackms/memtier-go/internal/domain/search"
)

// emaAlpha weights latency averages toward recent samples.
const emaAlpha = 0.1

// metrics holds the coordinator counters behind one small lock; the hot path
// touches it only briefly, never across an await.
type metrics struct {
	mu               sync.Mutex
	total            uint64
	successes        uint64
	failures         uint64
	reranks          uint64
	emaSearchMS      float64
	emaEmbedMS       float64
	haveSearchSample bool
	haveEmbedSample  bool
}

func newMetrics() *metrics {
	return &metrics{}
}

func (m *metrics) recordSearchStart() {
	m.mu.Lock()
	m.total++
	m.mu.Unlock()
}

func (m *metrics) recordSuccess(latency time.Duration) {
	ms := float64(latency.Microseconds()) / 1000.0
	m.mu.Lock()
	m.successes++
	if m.haveSearchSample {
		m.emaSearchMS = emaAlpha*ms + (1-emaAlpha)*m.emaSearchMS
	} else {
		m.emaSearchMS = ms
		m.haveSearchSample = true
	}
	m.mu.Unlock()
}

func (m *metrics) recordFailure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

func (m *metrics) recordEmbedLatency(latency time.Duration) {
	ms := float64(latency.Microseconds()) / 1000.0
	m.mu.Lock()
	if m.haveEmbedSample {
		m.emaEmbedMS = emaAlpha*ms + (1-emaAlpha)*m.emaEmbedMS
	} else {
		m.emaEmbedMS = ms
		m.haveEmbedSample = true
	}
	m.mu.Unlock()
}

func (m *metrics) recordRerank() {
	m.mu.Lock()
	m.reranks++
	m.mu.Unlock()
}

func (m *metrics) snapshot() domainsearch.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domainsearch.Metrics{
		TotalSearches:      m.total,
		SuccessfulSearches: m.successes,
		FailedSearches:     m.failures,
		RerankOperations:   m.reranks,
		AvgSearchLatencyMS: m.emaSearchMS,
		AvgEmbedLatencyMS:  m.emaEmbedMS,
	}
}
