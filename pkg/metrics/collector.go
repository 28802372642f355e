package metrics

import (
	"time"
)

// collectInterval is how often the fleet and account gauges refresh
const collectInterval = 15 * time.Second

// Counts are the domain totals exported as gauges
type Counts struct {
	ParcelsByStatus map[string]int
	UsersByRole     map[string]int
	UsersPending    int
}

// Source supplies the counts. The action service implements it over
// the record store.
type Source interface {
	Counts() (Counts, error)
}

// Collector periodically refreshes ParcelsTotal, UsersTotal and
// UsersPendingApproval from a Source
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a gauge collector
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting
func (c *Collector) Start() {
	ticker := time.NewTicker(collectInterval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	counts, err := c.source.Counts()
	if err != nil {
		return
	}

	// Reset so emptied label values drop to zero rather than sticking
	ParcelsTotal.Reset()
	for status, n := range counts.ParcelsByStatus {
		ParcelsTotal.WithLabelValues(status).Set(float64(n))
	}

	UsersTotal.Reset()
	for role, n := range counts.UsersByRole {
		UsersTotal.WithLabelValues(role).Set(float64(n))
	}

	UsersPendingApproval.Set(float64(counts.UsersPending))
}
