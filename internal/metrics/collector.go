package metrics

import (
	"context"
	"time"

	"github.com/cuemby/odf/pkg/dataset"
)

// Collector periodically samples a Repository and updates DatasetsTotal:
// collect immediately, then on a fixed interval until Stop.
type Collector struct {
	repo   *dataset.Repository
	stopCh chan struct{}
}

func NewCollector(repo *dataset.Repository) *Collector {
	return &Collector{repo: repo, stopCh: make(chan struct{})}
}

func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
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

func (c *Collector) Stop() { close(c.stopCh) }

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	names, err := c.repo.List(ctx)
	if err != nil {
		return
	}

	counts := map[string]int{}
	for _, name := range names {
		ds, err := c.repo.Open(ctx, name)
		if err != nil {
			continue
		}
		summary, err := ds.GetSummary(ctx, dataset.SummaryOpts{})
		if err != nil {
			continue
		}
		counts[string(summary.Kind)]++
	}

	for kind, count := range counts {
		DatasetsTotal.WithLabelValues(kind).Set(float64(count))
	}
}
