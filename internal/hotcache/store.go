// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hotcache keeps a short-retention SQLite mirror of ingested
// records, one store per {service}:{signal} name, so Parquet exports
// never touch the cold sink. The store is the sharded-actor analog of
// a per-name durable object: one worker owns each SQLite connection
// and serializes access with a mutex.
package hotcache

import (
	"embed"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/dbconn"
	"github.com/otelgate/otelgate/internal/taskmanager"
	"github.com/otelgate/otelgate/pkg/ir"
)

// MaxRetention bounds the retention period (7 days).
const MaxRetention = 7 * 24 * time.Hour

//go:embed migrations/*
var migrationFiles embed.FS

// Tables is the fixed set of hot-cache tables. Query table names are
// validated against this allowlist; they come in from the query layer,
// never into SQL directly.
var Tables = []string{"logs", "traces", "gauge", "sum"}

var tableColumns = map[string][]string{
	"logs": {
		"timestamp", "_timestamp_nanos", "_signal", "observed_timestamp",
		"trace_id", "span_id", "service_name", "service_namespace",
		"service_instance_id", "severity_number", "severity_text", "body",
		"resource_attributes", "scope_name", "scope_version",
		"scope_attributes", "log_attributes",
	},
	"traces": {
		"timestamp", "_timestamp_nanos", "_signal", "end_timestamp",
		"duration", "trace_id", "span_id", "parent_span_id", "trace_state",
		"service_name", "service_namespace", "service_instance_id",
		"span_name", "span_kind", "status_code", "status_message",
		"resource_attributes", "scope_name", "scope_version",
		"scope_attributes", "span_attributes", "events", "links",
		"dropped_attributes_count", "dropped_events_count",
		"dropped_links_count", "flags",
	},
	"gauge": {
		"timestamp", "_timestamp_nanos", "_signal", "start_timestamp",
		"service_name", "service_namespace", "service_instance_id",
		"metric_name", "metric_description", "metric_unit", "value", "flags",
		"metric_attributes", "resource_attributes", "scope_name",
		"scope_version", "scope_attributes",
	},
	"sum": {
		"timestamp", "_timestamp_nanos", "_signal", "start_timestamp",
		"service_name", "service_namespace", "service_instance_id",
		"metric_name", "metric_description", "metric_unit", "value", "flags",
		"metric_attributes", "resource_attributes", "scope_name",
		"scope_version", "scope_attributes",
		"aggregation_temporality", "is_monotonic",
	},
}

// ValidTable reports whether a query names one of the four tables.
func ValidTable(table string) bool {
	_, ok := tableColumns[table]
	return ok
}

// Store is one {service}:{signal} hot-cache instance.
type Store struct {
	name      string
	db        *sqlx.DB
	retention time.Duration
	now       func() time.Time
}

func openStore(name, path string, retention time.Duration) (*Store, error) {
	db, err := dbconn.Open(path)
	if err != nil {
		return nil, err
	}
	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	if retention <= 0 {
		retention = time.Hour
	}
	if retention > MaxRetention {
		retention = MaxRetention
	}

	return &Store{name: name, db: db, retention: retention, now: time.Now}, nil
}

func migrateSchema(db *sqlx.DB) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	d, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Ingest inserts a batch of rows. Every record's _table field names
// one of the four tables; the whole batch is written in a single
// transaction, matching the write coalescing a durable-object runtime
// performs within one request.
func (s *Store) Ingest(records []ir.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	count := 0
	for _, record := range records {
		table := ir.GetString(record, "_table")
		columns, ok := tableColumns[table]
		if !ok {
			return 0, fmt.Errorf("unknown table: %s", table)
		}

		values := make([]any, 0, len(columns))
		for _, col := range columns {
			values = append(values, record[col])
		}

		query, args, err := sq.Insert(table).Columns(columns...).Values(values...).ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.scheduleCleanupAlarm()
	return count, nil
}

// QueryRequest filters a hot-cache read.
type QueryRequest struct {
	Table      string              `json:"table"`
	StartTime  *int64              `json:"start_time"`
	EndTime    *int64              `json:"end_time"`
	TraceID    string              `json:"trace_id"`
	MetricName string              `json:"metric_name"`
	Labels     [][2]string         `json:"labels"`
	Limit      int64               `json:"limit"`
}

// Query returns matching rows ordered timestamp DESC, id DESC. The
// limit clamps to [1, 10000].
func (s *Store) Query(q QueryRequest) ([]ir.Record, error) {
	if !ValidTable(q.Table) {
		return nil, fmt.Errorf("invalid table name")
	}

	builder := sq.Select("*").From(q.Table)
	if q.StartTime != nil {
		builder = builder.Where(sq.GtOrEq{"timestamp": *q.StartTime})
	}
	if q.EndTime != nil {
		builder = builder.Where(sq.LtOrEq{"timestamp": *q.EndTime})
	}
	if q.TraceID != "" {
		builder = builder.Where(sq.Eq{"trace_id": q.TraceID})
	}
	isMetric := q.Table == "gauge" || q.Table == "sum"
	if isMetric && q.MetricName != "" {
		builder = builder.Where(sq.Eq{"metric_name": q.MetricName})
	}
	if isMetric {
		for _, label := range q.Labels {
			pattern := fmt.Sprintf(`%%"%s":"%s"%%`, label[0], label[1])
			builder = builder.Where(sq.Like{"metric_attributes": pattern})
		}
	}

	limit := q.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > 10_000 {
		limit = 10_000
	}
	builder = builder.OrderBy("timestamp DESC", "id DESC").Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Queryx(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]ir.Record, 0, 64)
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Cleanup deletes rows older than the retention window across every
// table, then re-arms the alarm only while any table still holds rows.
func (s *Store) Cleanup() {
	cutoff := s.now().Add(-s.retention).UnixMilli()

	deleted := make(map[string]int64, len(Tables))
	var remaining int64
	for _, table := range Tables {
		res, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", table), cutoff)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"store": s.name, "table": table}).
				Warn("hot cache cleanup failed")
			continue
		}
		n, _ := res.RowsAffected()
		deleted[table] = n

		var count int64
		if err := s.db.Get(&count, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)); err != nil {
			log.WithError(err).WithFields(log.Fields{"store": s.name, "table": table}).
				Warn("hot cache count failed")
			continue
		}
		remaining += count
	}

	log.WithFields(log.Fields{
		"store":     s.name,
		"deleted":   deleted,
		"remaining": remaining,
	}).Debug("hot cache retention pass complete")

	if remaining > 0 {
		s.scheduleCleanupAlarm()
	} else {
		taskmanager.CancelAlarm(s.alarmName())
	}
}

func (s *Store) alarmName() string { return "hotcache:" + s.name }

func (s *Store) scheduleCleanupAlarm() {
	taskmanager.ScheduleAlarm(s.alarmName(), s.now().Add(s.retention), s.Cleanup)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
