// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package aggregator

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/dbconn"
	"github.com/otelgate/otelgate/internal/taskmanager"
	"github.com/otelgate/otelgate/pkg/ir"
)

// MaxRetentionMinutes bounds the retention period (7 days).
const MaxRetentionMinutes = 10_080

const logsDDL = `CREATE TABLE IF NOT EXISTS stats (
	minute INTEGER PRIMARY KEY,
	count INTEGER DEFAULT 0,
	error_count INTEGER DEFAULT 0
)`

const tracesDDL = `CREATE TABLE IF NOT EXISTS stats (
	minute INTEGER PRIMARY KEY,
	count INTEGER DEFAULT 0,
	error_count INTEGER DEFAULT 0,
	latency_sum_us INTEGER DEFAULT 0,
	latency_min_us INTEGER,
	latency_max_us INTEGER
)`

// StatsRow is one minute bucket, as returned by stats queries.
type StatsRow struct {
	Minute       int64  `db:"minute" json:"minute"`
	Count        int64  `db:"count" json:"count"`
	ErrorCount   int64  `db:"error_count" json:"error_count"`
	LatencySumUs *int64 `db:"latency_sum_us" json:"latency_sum_us,omitempty"`
	LatencyMinUs *int64 `db:"latency_min_us" json:"latency_min_us,omitempty"`
	LatencyMaxUs *int64 `db:"latency_max_us" json:"latency_max_us,omitempty"`
}

// Store is one {service}:{signal} aggregator instance.
type Store struct {
	name      string
	isTraces  bool
	db        *sqlx.DB
	retention time.Duration
	now       func() time.Time
}

// signalFromName parses the store signal from the instance name
// suffix; anything but ":traces" defaults to logs.
func signalFromName(name string) bool {
	return strings.HasSuffix(name, ":traces")
}

func openStore(name, path string, retention time.Duration) (*Store, error) {
	db, err := dbconn.Open(path)
	if err != nil {
		return nil, err
	}

	isTraces := signalFromName(name)
	ddl := logsDDL
	if isTraces {
		ddl = tracesDDL
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, err
	}

	if retention <= 0 {
		retention = time.Hour
	}
	if retention > MaxRetentionMinutes*time.Minute {
		retention = MaxRetentionMinutes * time.Minute
	}

	return &Store{name: name, isTraces: isTraces, db: db, retention: retention, now: time.Now}, nil
}

func (s *Store) nowMinute() int64 {
	return s.now().UnixMilli() / 60_000
}

// Ingest accumulates the batch in memory and upserts one row for the
// current minute bucket, summing counts and min/max-merging latencies
// with any concurrent writer.
func (s *Store) Ingest(records []ir.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	minute := s.nowMinute()

	if s.isTraces {
		var agg TraceAggregates
		for _, record := range records {
			agg.Accumulate(record)
		}
		if err := s.upsertTraceStats(minute, &agg); err != nil {
			return 0, err
		}
	} else {
		var agg LogAggregates
		for _, record := range records {
			agg.Accumulate(record)
		}
		if err := s.upsertLogStats(minute, &agg); err != nil {
			return 0, err
		}
	}

	s.scheduleCleanupAlarm()
	return len(records), nil
}

func (s *Store) upsertLogStats(minute int64, agg *LogAggregates) error {
	_, err := s.db.Exec(
		`INSERT INTO stats (minute, count, error_count) VALUES (?, ?, ?)
		 ON CONFLICT(minute) DO UPDATE SET
		   count = count + excluded.count,
		   error_count = error_count + excluded.error_count`,
		minute, agg.Count, agg.ErrorCount)
	return err
}

func (s *Store) upsertTraceStats(minute int64, agg *TraceAggregates) error {
	_, err := s.db.Exec(
		`INSERT INTO stats (minute, count, error_count, latency_sum_us, latency_min_us, latency_max_us)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(minute) DO UPDATE SET
		   count = count + excluded.count,
		   error_count = error_count + excluded.error_count,
		   latency_sum_us = latency_sum_us + excluded.latency_sum_us,
		   latency_min_us = MIN(COALESCE(latency_min_us, excluded.latency_min_us), COALESCE(excluded.latency_min_us, latency_min_us)),
		   latency_max_us = MAX(COALESCE(latency_max_us, excluded.latency_max_us), COALESCE(excluded.latency_max_us, latency_max_us))`,
		minute, agg.Count, agg.ErrorCount, agg.LatencySumUs, agg.LatencyMinUs, agg.LatencyMaxUs)
	return err
}

// Stats returns the rows in the requested minute range, oldest first.
func (s *Store) Stats(from, to *int64) ([]StatsRow, error) {
	builder := sq.Select("*").From("stats")
	if from != nil {
		builder = builder.Where(sq.GtOrEq{"minute": *from})
	}
	if to != nil {
		builder = builder.Where(sq.LtOrEq{"minute": *to})
	}
	builder = builder.OrderBy("minute")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows := []StatsRow{}
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// Cleanup trims buckets older than the retention window and re-arms
// only while rows remain.
func (s *Store) Cleanup() {
	cutoff := s.nowMinute() - int64(s.retention/time.Minute)

	res, err := s.db.Exec("DELETE FROM stats WHERE minute < ?", cutoff)
	if err != nil {
		log.WithError(err).WithField("store", s.name).Warn("aggregator cleanup failed")
		return
	}
	deleted, _ := res.RowsAffected()

	var remaining int64
	if err := s.db.Get(&remaining, "SELECT COUNT(*) FROM stats"); err != nil {
		log.WithError(err).WithField("store", s.name).Warn("aggregator count failed")
		return
	}

	log.WithFields(log.Fields{"store": s.name, "deleted": deleted, "remaining": remaining}).
		Debug("aggregator retention pass complete")

	if remaining > 0 {
		s.scheduleCleanupAlarm()
	} else {
		taskmanager.CancelAlarm(s.alarmName())
	}
}

func (s *Store) alarmName() string { return "aggregator:" + s.name }

func (s *Store) scheduleCleanupAlarm() {
	taskmanager.ScheduleAlarm(s.alarmName(), s.now().Add(time.Minute), s.Cleanup)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Manager hands out aggregator stores by name.
type Manager struct {
	mu        sync.Mutex
	stores    map[string]*storeHandle
	dir       string
	retention time.Duration
}

type storeHandle struct {
	mu    sync.Mutex
	store *Store
}

// NewManager creates a manager writing store databases under dir; an
// empty dir keeps stores in memory.
func NewManager(dir string, retention time.Duration) *Manager {
	return &Manager{
		stores:    make(map[string]*storeHandle),
		dir:       dir,
		retention: retention,
	}
}

func (m *Manager) handle(name string) (*storeHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.stores[name]; ok {
		return h, nil
	}

	path := ":memory:"
	if m.dir != "" {
		path = filepath.Join(m.dir, "agg_"+strings.ReplaceAll(name, ":", "_")+".db")
	}
	store, err := openStore(name, path, m.retention)
	if err != nil {
		return nil, fmt.Errorf("open aggregator store %s: %w", name, err)
	}

	h := &storeHandle{store: store}
	m.stores[name] = h
	return h, nil
}

// Ingest accumulates a batch into the named store.
func (m *Manager) Ingest(name string, records []ir.Record) (int, error) {
	h, err := m.handle(name)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Ingest(records)
}

// Stats queries the named store. A store that was never written
// returns no rows.
func (m *Manager) Stats(name string, from, to *int64) ([]StatsRow, error) {
	m.mu.Lock()
	h, ok := m.stores[name]
	m.mu.Unlock()
	if !ok {
		return []StatsRow{}, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Stats(from, to)
}

// Close releases every open store.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, h := range m.stores {
		h.mu.Lock()
		h.store.Close()
		h.mu.Unlock()
		delete(m.stores, name)
	}
}
