package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends every registered metric to a Pushgateway under job. Batch
// commands call it once before exiting; an empty url disables pushing.
func Push(ctx context.Context, url, job, instance string) error {
	if url == "" {
		return nil
	}
	p := push.New(url, job).Gatherer(prometheus.DefaultGatherer)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
