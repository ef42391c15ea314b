// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package export materializes hot-cache query results as Parquet
// files, fanning out one query per {service}:{signal} store and
// merging the rows deterministically.
package export

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Validation limits.
const (
	MaxServices  = 50
	MaxLimit     = 10_000
	DefaultLimit = 1_000
)

// Params is a parsed export request.
type Params struct {
	Services   []string
	Start      *float64 // Unix seconds
	End        *float64
	Limit      int
	TraceID    string
	MetricName string
	Labels     [][2]string
}

// Error carries the HTTP status a parameter failure maps to.
type Error struct {
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Message }

func badRequest(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Status: 400}
}

// ParseParams reads the query string. Unknown keys are ignored.
func ParseParams(values url.Values) (*Params, *Error) {
	p := &Params{Limit: DefaultLimit}

	if raw := values.Get("services"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				p.Services = append(p.Services, s)
			}
		}
	}
	if raw := values.Get("start"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, badRequest("Invalid start time")
		}
		p.Start = &v
	}
	if raw := values.Get("end"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, badRequest("Invalid end time")
		}
		p.End = &v
	}
	if raw := values.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return nil, badRequest("Invalid limit")
		}
		p.Limit = v
	}
	p.TraceID = values.Get("trace_id")
	p.MetricName = values.Get("metric_name")
	if raw := values.Get("labels"); raw != "" {
		p.Labels = ParseLabels(raw)
	}

	return p, nil
}

// ParseLabels parses the k=v,k2=v2 label filter format.
func ParseLabels(raw string) [][2]string {
	var labels [][2]string
	for _, pair := range strings.Split(raw, ",") {
		key, value, _ := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" {
			labels = append(labels, [2]string{key, value})
		}
	}
	return labels
}

// Validate enforces the parameter bounds.
func (p *Params) Validate() *Error {
	if len(p.Services) == 0 {
		return badRequest("services parameter is required")
	}
	if len(p.Services) > MaxServices {
		return badRequest("Too many services (max %d)", MaxServices)
	}
	if p.Limit == 0 || p.Limit > MaxLimit {
		return badRequest("limit must be between 1 and %d", MaxLimit)
	}
	if p.Start != nil && p.End != nil && *p.Start > *p.End {
		return badRequest("start must be <= end")
	}
	return nil
}

// DONames returns the sorted-unique store names for a signal.
func (p *Params) DONames(sig string) []string {
	unique := make(map[string]struct{}, len(p.Services))
	for _, svc := range p.Services {
		unique[svc] = struct{}{}
	}
	services := make([]string, 0, len(unique))
	for svc := range unique {
		services = append(services, svc)
	}
	sort.Strings(services)

	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc+":"+sig)
	}
	return names
}

// StartMillis converts the start bound to milliseconds.
func (p *Params) StartMillis() *int64 {
	if p.Start == nil {
		return nil
	}
	ms := int64(*p.Start * 1000.0)
	return &ms
}

// EndMillis converts the end bound to milliseconds.
func (p *Params) EndMillis() *int64 {
	if p.End == nil {
		return nil
	}
	ms := int64(*p.End * 1000.0)
	return &ms
}
