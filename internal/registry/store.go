// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry tracks every service and metric name the gateway
// has seen, in a singleton SQLite store guarded against cardinality
// explosion.
package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/dbconn"
)

// MaxServices caps unique service names; the store backing a registry
// instance is small and append-only, so the guard is what keeps a
// misbehaving client from exhausting it.
const MaxServices = 10_000

// MaxMetrics caps unique (name, type) metric pairs.
const MaxMetrics = 10_000

const servicesDDL = `CREATE TABLE IF NOT EXISTS services (
	name TEXT PRIMARY KEY,
	first_seen_at INTEGER NOT NULL,
	has_logs INTEGER DEFAULT 0,
	has_traces INTEGER DEFAULT 0,
	has_metrics INTEGER DEFAULT 0
)`

const metricsDDL = `CREATE TABLE IF NOT EXISTS metrics (
	name TEXT NOT NULL,
	metric_type TEXT NOT NULL,
	first_seen_at INTEGER NOT NULL,
	PRIMARY KEY (name, metric_type)
)`

// CardinalityError reports a rejected registration; it maps to HTTP
// 507.
type CardinalityError struct {
	Current int
	New     int
	Max     int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("registry limit exceeded: %d current + %d new would exceed maximum of %d",
		e.Current, e.New, e.Max)
}

// ServiceRecord is one registered service with its signal flags.
type ServiceRecord struct {
	Name        string `db:"name" json:"name"`
	FirstSeenAt int64  `db:"first_seen_at" json:"first_seen_at"`
	HasLogs     int64  `db:"has_logs" json:"has_logs"`
	HasTraces   int64  `db:"has_traces" json:"has_traces"`
	HasMetrics  int64  `db:"has_metrics" json:"has_metrics"`
}

// MetricRecord is one registered metric.
type MetricRecord struct {
	Name        string `db:"name" json:"name"`
	MetricType  string `db:"metric_type" json:"metric_type"`
	FirstSeenAt int64  `db:"first_seen_at" json:"first_seen_at"`
}

// Registration is one service + signal-category pair.
type Registration struct {
	Name   string `json:"name"`
	Signal string `json:"signal"`
}

// Store is the singleton registry instance.
type Store struct {
	mu  sync.Mutex
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (creating if needed) the registry database. An empty
// path keeps it in memory.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := dbconn.Open(path)
	if err != nil {
		return nil, err
	}
	for _, ddl := range []string{servicesDDL, metricsDDL} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) serviceCount() (int, error) {
	var count int
	err := s.db.Get(&count, "SELECT COUNT(*) FROM services")
	return count, err
}

func (s *Store) countNewServices(names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In("SELECT COUNT(*) FROM services WHERE name IN (?)", names)
	if err != nil {
		return 0, err
	}
	var existing int
	if err := s.db.Get(&existing, query, args...); err != nil {
		return 0, err
	}
	return len(names) - existing, nil
}

// Register upserts a batch of service registrations, ORing the signal
// flags. The cardinality guard runs before any insert: when current +
// net-new names would exceed MaxServices the whole batch is rejected.
func (s *Store) Register(registrations []Registration) (int, error) {
	if len(registrations) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(registrations))
	names := make([]string, 0, len(registrations))
	for _, reg := range registrations {
		if _, ok := seen[reg.Name]; ok {
			continue
		}
		seen[reg.Name] = struct{}{}
		names = append(names, reg.Name)
	}

	current, err := s.serviceCount()
	if err != nil {
		return 0, err
	}
	newCount, err := s.countNewServices(names)
	if err != nil {
		return 0, err
	}
	if current+newCount > MaxServices {
		log.WithFields(log.Fields{"current": current, "new": newCount, "max": MaxServices}).
			Warn("service registry limit exceeded")
		return 0, &CardinalityError{Current: current, New: newCount, Max: MaxServices}
	}

	now := s.now().UnixMilli()
	registered := 0
	for _, reg := range registrations {
		hasLogs, hasTraces, hasMetrics := 0, 0, 0
		switch reg.Signal {
		case "logs":
			hasLogs = 1
		case "traces":
			hasTraces = 1
		case "metrics":
			hasMetrics = 1
		}

		_, err := s.db.Exec(
			`INSERT INTO services (name, first_seen_at, has_logs, has_traces, has_metrics)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
			   has_logs = MAX(has_logs, excluded.has_logs),
			   has_traces = MAX(has_traces, excluded.has_traces),
			   has_metrics = MAX(has_metrics, excluded.has_metrics)`,
			reg.Name, now, hasLogs, hasTraces, hasMetrics)
		if err != nil {
			return registered, err
		}
		registered++
	}

	return registered, nil
}

// RegisterMetrics upserts (name, type) metric pairs under the same
// cardinality guard.
func (s *Store) RegisterMetrics(metrics [][2]string) (int, error) {
	if len(metrics) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int
	if err := s.db.Get(&current, "SELECT COUNT(*) FROM metrics"); err != nil {
		return 0, err
	}
	if current+len(metrics) > MaxMetrics {
		log.WithFields(log.Fields{"current": current, "new": len(metrics), "max": MaxMetrics}).
			Warn("metric registry limit exceeded")
		return 0, &CardinalityError{Current: current, New: len(metrics), Max: MaxMetrics}
	}

	now := s.now().UnixMilli()
	registered := 0
	for _, m := range metrics {
		_, err := s.db.Exec(
			`INSERT INTO metrics (name, metric_type, first_seen_at) VALUES (?, ?, ?)
			 ON CONFLICT(name, metric_type) DO NOTHING`,
			m[0], m[1], now)
		if err != nil {
			return registered, err
		}
		registered++
	}

	return registered, nil
}

// List returns every registered service sorted by name.
func (s *Store) List() ([]ServiceRecord, error) {
	query, _, err := sq.Select("*").From("services").OrderBy("name").ToSql()
	if err != nil {
		return nil, err
	}
	services := []ServiceRecord{}
	if err := s.db.Select(&services, query); err != nil {
		return nil, err
	}
	return services, nil
}

// ListMetrics returns every registered metric sorted by name then
// type.
func (s *Store) ListMetrics() ([]MetricRecord, error) {
	query, _, err := sq.Select("*").From("metrics").OrderBy("name", "metric_type").ToSql()
	if err != nil {
		return nil, err
	}
	metrics := []MetricRecord{}
	if err := s.db.Select(&metrics, query); err != nil {
		return nil, err
	}
	return metrics, nil
}

// signalCategory collapses the table layer back to the three
// registry flags.
func signalCategory(table string) string {
	switch table {
	case "logs", "traces":
		return table
	}
	if strings.HasPrefix(table, "gauge") || strings.HasPrefix(table, "sum") {
		return "metrics"
	}
	return "metrics"
}
