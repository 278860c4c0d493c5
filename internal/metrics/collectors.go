package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"hermes/pkg/logger"
)

// AccountingCollector collects gauge-style state from the databases on
// every scrape, so restarts do not lose the aggregate view.
type AccountingCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB
	redis    *redis.Client

	positionsByState *prometheus.Desc
	ordersByStatus   *prometheus.Desc
	openStake        *prometheus.Desc
	closedProfit     *prometheus.Desc
	snapshotKeys     *prometheus.Desc
}

// NewAccountingCollector creates a new database-backed collector
func NewAccountingCollector(log *logger.Logger, postgres *sqlx.DB, redisClient *redis.Client) *AccountingCollector {
	return &AccountingCollector{
		log:      log,
		postgres: postgres,
		redis:    redisClient,

		positionsByState: prometheus.NewDesc(
			"hermes_positions_total",
			"Total number of positions by state",
			[]string{"state"}, nil, // state: open|closed
		),
		ordersByStatus: prometheus.NewDesc(
			"hermes_orders_total",
			"Total number of orders by status",
			[]string{"status"}, nil,
		),
		openStake: prometheus.NewDesc(
			"hermes_open_stake_total",
			"Stake currency bound in open positions",
			nil, nil,
		),
		closedProfit: prometheus.NewDesc(
			"hermes_closed_profit_total",
			"Realized profit over all closed positions",
			nil, nil,
		),
		snapshotKeys: prometheus.NewDesc(
			"hermes_snapshot_keys",
			"Number of position snapshots cached in Redis",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *AccountingCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.positionsByState
	ch <- c.ordersByStatus
	ch <- c.openStake
	ch <- c.closedProfit
	ch <- c.snapshotKeys
}

// Collect implements prometheus.Collector
func (c *AccountingCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectPositionStats(ctx, ch)
	c.collectOrderStats(ctx, ch)
	c.collectAggregates(ctx, ch)
	c.collectSnapshotStats(ctx, ch)
}

func (c *AccountingCollector) collectPositionStats(ctx context.Context, ch chan<- prometheus.Metric) {
	type positionStat struct {
		IsOpen bool `db:"is_open"`
		Count  int  `db:"count"`
	}

	var stats []positionStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT is_open, COUNT(*) as count
		FROM positions
		GROUP BY is_open
	`)
	if err != nil {
		c.log.Error("Failed to collect position stats", "error", err)
		return
	}

	for _, stat := range stats {
		state := "closed"
		if stat.IsOpen {
			state = "open"
		}
		ch <- prometheus.MustNewConstMetric(
			c.positionsByState,
			prometheus.GaugeValue,
			float64(stat.Count),
			state,
		)
	}
}

func (c *AccountingCollector) collectOrderStats(ctx context.Context, ch chan<- prometheus.Metric) {
	type orderStat struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	var stats []orderStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT status, COUNT(*) as count
		FROM orders
		GROUP BY status
	`)
	if err != nil {
		c.log.Error("Failed to collect order stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.ordersByStatus,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Status,
		)
	}
}

func (c *AccountingCollector) collectAggregates(ctx context.Context, ch chan<- prometheus.Metric) {
	var openStake float64
	if err := c.postgres.GetContext(ctx, &openStake,
		`SELECT COALESCE(SUM(stake_amount), 0) FROM positions WHERE is_open`); err != nil {
		c.log.Error("Failed to collect open stake", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.openStake, prometheus.GaugeValue, openStake)

	var closedProfit float64
	if err := c.postgres.GetContext(ctx, &closedProfit,
		`SELECT COALESCE(SUM(realized_profit), 0) FROM positions WHERE NOT is_open`); err != nil {
		c.log.Error("Failed to collect closed profit", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.closedProfit, prometheus.GaugeValue, closedProfit)
}

func (c *AccountingCollector) collectSnapshotStats(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.redis == nil {
		return
	}

	keys, err := c.redis.Keys(ctx, "position:snapshot:*").Result()
	if err != nil {
		c.log.Error("Failed to collect snapshot stats", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.snapshotKeys,
		prometheus.GaugeValue,
		float64(len(keys)),
	)
}
