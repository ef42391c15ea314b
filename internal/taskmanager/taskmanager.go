// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskmanager runs the retention alarms of the hot-cache and
// aggregator stores on a shared gocron scheduler. Each store arms at
// most one named one-shot alarm; re-arming while an alarm is pending
// is a no-op, matching the storage-alarm semantics the stores expect.
package taskmanager

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	mu    sync.Mutex
	s     gocron.Scheduler
	jobs  map[string]uuid.UUID
)

// Start creates and starts the scheduler.
func Start() error {
	mu.Lock()
	defer mu.Unlock()

	if s != nil {
		return nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s = sched
	jobs = make(map[string]uuid.UUID)
	s.Start()
	return nil
}

// Shutdown stops the scheduler and drops all pending alarms.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()

	if s != nil {
		if err := s.Shutdown(); err != nil {
			log.WithError(err).Warn("taskmanager shutdown failed")
		}
		s = nil
		jobs = nil
	}
}

// AlarmSet reports whether a named alarm is pending.
func AlarmSet(name string) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := jobs[name]
	return ok
}

// ScheduleAlarm arms a one-shot alarm unless one with the same name is
// already pending.
func ScheduleAlarm(name string, at time.Time, fn func()) {
	mu.Lock()
	defer mu.Unlock()

	if s == nil {
		return
	}
	if _, ok := jobs[name]; ok {
		return
	}

	job, err := s.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(func() {
			mu.Lock()
			delete(jobs, name)
			mu.Unlock()
			fn()
		}),
	)
	if err != nil {
		log.WithError(err).WithField("alarm", name).Warn("failed to schedule alarm")
		return
	}
	jobs[name] = job.ID()
}

// CancelAlarm clears a pending alarm.
func CancelAlarm(name string) {
	mu.Lock()
	defer mu.Unlock()

	if s == nil {
		return
	}
	if id, ok := jobs[name]; ok {
		if err := s.RemoveJob(id); err != nil {
			log.WithError(err).WithField("alarm", name).Debug("failed to remove alarm job")
		}
		delete(jobs, name)
	}
}
