package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gkouam/soulbondai-sub005/manager"
)

// StatsSource provides queue snapshots. *manager.Manager implements it.
type StatsSource interface {
	GetQueueStats(ctx context.Context) (manager.Snapshot, error)
}

// StatsCollector is a prometheus.Collector that reads a fresh snapshot on
// every scrape.
type StatsCollector struct {
	source  StatsSource
	timeout time.Duration
	logger  *slog.Logger

	jobs          *prometheus.Desc
	oldestPending *prometheus.Desc
	workersBusy   *prometheus.Desc
	workersTotal  *prometheus.Desc
	running       *prometheus.Desc
	scrapeErrors  prometheus.Counter
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector creates a collector over source. Each scrape gives the
// store at most timeout to answer.
func NewStatsCollector(source StatsSource, timeout time.Duration, logger *slog.Logger) *StatsCollector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StatsCollector{
		source:  source,
		timeout: timeout,
		logger:  logger,
		jobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "jobs"),
			"Number of jobs by type and state",
			[]string{"type", "state"}, nil,
		),
		oldestPending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "oldest_pending_seconds"),
			"Age of the oldest pending job by type",
			[]string{"type"}, nil,
		),
		workersBusy: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "workers", "busy"),
			"Number of worker slots executing a job",
			nil, nil,
		),
		workersTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "workers", "concurrency"),
			"Number of worker slots",
			nil, nil,
		),
		running: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "manager", "running"),
			"1 if the queue manager is started",
			nil, nil,
		),
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "stats_errors_total",
			Help:      "Failed queue snapshot reads during scrapes",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
	ch <- c.oldestPending
	ch <- c.workersBusy
	ch <- c.workersTotal
	ch <- c.running
	c.scrapeErrors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	snap, err := c.source.GetQueueStats(ctx)
	if err != nil {
		c.scrapeErrors.Inc()
		c.scrapeErrors.Collect(ch)
		if c.logger != nil {
			c.logger.Warn("queue stats scrape failed", slog.String("error", err.Error()))
		}
		return
	}
	c.scrapeErrors.Collect(ch)

	for jobType, ts := range snap.Types {
		for state, n := range ts.Counts {
			ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(n), jobType, string(state))
		}
		ch <- prometheus.MustNewConstMetric(c.oldestPending, prometheus.GaugeValue, ts.OldestPendingSeconds, jobType)
	}
	ch <- prometheus.MustNewConstMetric(c.workersBusy, prometheus.GaugeValue, float64(snap.Workers.Busy))
	ch <- prometheus.MustNewConstMetric(c.workersTotal, prometheus.GaugeValue, float64(snap.Workers.Concurrency))
	running := 0.0
	if snap.Running {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
}
