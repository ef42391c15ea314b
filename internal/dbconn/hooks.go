// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dbconn

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type ctxKey string

const beginKey ctxKey = "begin"

// Hooks satisfies the sqlhooks.Hooks interface.
type Hooks struct{}

// Before logs the query with its args and stamps the context.
func (h *Hooks) Before(ctx context.Context, query string, args ...any) (context.Context, error) {
	log.Debugf("SQL query %s %q", query, args)
	return context.WithValue(ctx, beginKey, time.Now()), nil
}

// After logs the elapsed time since Before.
func (h *Hooks) After(ctx context.Context, query string, args ...any) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey).(time.Time); ok {
		log.Debugf("Took: %s", time.Since(begin))
	}
	return ctx, nil
}
