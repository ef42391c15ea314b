// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package livetail

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// presenceTTL is deliberately short (10 s, versus the registry's 3
// min) since client presence changes frequently.
const presenceTTL = 10 * time.Second

const presenceCacheSize = 4096

// PresenceCache is the worker-local map from {service}:{signal} to
// whether that hub had clients at last contact. A fresh false entry
// lets the sender skip the hub call entirely, which is what keeps
// ambient telemetry from paying a per-request fan-out.
type PresenceCache struct {
	lru *expirable.LRU[string, bool]
}

// NewPresenceCache creates an empty cache.
func NewPresenceCache() *PresenceCache {
	return &PresenceCache{
		lru: expirable.NewLRU[string, bool](presenceCacheSize, nil, presenceTTL),
	}
}

// HasClients returns the cached presence, or ok=false on a miss or
// stale entry (requiring a hub call).
func (c *PresenceCache) HasClients(name string) (bool, bool) {
	return c.lru.Get(name)
}

// Update stores the presence observed from a hub's reported client
// count, resetting the entry's TTL.
func (c *PresenceCache) Update(name string, hasClients bool) {
	c.lru.Add(name, hasClients)
}
