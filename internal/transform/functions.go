// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/otelgate/otelgate/pkg/ir"
)

// Custom primitives available to every transform program.

// i64 max cannot be represented exactly as f64; this is the largest
// float that round-trips through f64 into the i64 range.
const maxSafeFloat = 9_223_372_036_854_774_784.0
const minSafeFloat = float64(math.MinInt64)

func toInt(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case float64:
		if math.IsNaN(val) {
			return 0, fmt.Errorf("cannot convert NaN to int")
		}
		if math.IsInf(val, 0) {
			return 0, fmt.Errorf("cannot convert infinity to int")
		}
		if val < minSafeFloat || val > maxSafeFloat {
			return 0, fmt.Errorf("float %g is out of range for i64", val)
		}
		return int64(val), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse int")
		}
		return i, nil
	}
	return 0, fmt.Errorf("cannot convert %T to int", v)
}

func toString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case nil:
		return "null", nil
	}
	return "", fmt.Errorf("cannot convert %T to string", v)
}

func getPath(v any, path []any) (any, error) {
	current := v
	for _, segment := range path {
		var key string
		switch seg := segment.(type) {
		case string:
			key = seg
		case int:
			key = strconv.Itoa(seg)
		case int64:
			key = strconv.FormatInt(seg, 10)
		default:
			return nil, fmt.Errorf("path segment must be string or int")
		}

		switch node := current.(type) {
		case map[string]any:
			current = node[key]
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("invalid array index %q", key)
			}
			if idx < 0 || idx >= len(node) {
				current = nil
			} else {
				current = node[idx]
			}
		default:
			return nil, nil
		}
	}
	return current, nil
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

func floorFn(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return math.Floor(val), nil
	case int64:
		return float64(val), nil
	case int:
		return float64(val), nil
	}
	return 0, fmt.Errorf("cannot floor %T", v)
}

// functionOptions compiles the custom primitives into a program so no
// per-invocation environment setup is needed.
func functionOptions() []expr.Option {
	return []expr.Option{
		expr.AllowUndefinedVariables(),
		// get and floor shadow expr builtins of the same name; the
		// program semantics below are the ones that must win.
		expr.DisableBuiltin("get"),
		expr.DisableBuiltin("floor"),
		expr.Function("to_int", func(args ...any) (any, error) {
			return toInt(args[0])
		}),
		expr.Function("to_string", func(args ...any) (any, error) {
			return toString(args[0])
		}),
		expr.Function("encode_json", func(args ...any) (any, error) {
			return ir.EncodeJSON(args[0]), nil
		}),
		expr.Function("get", func(args ...any) (any, error) {
			path, ok := args[1].([]any)
			if !ok {
				return nil, fmt.Errorf("path must be array")
			}
			return getPath(args[0], path)
		}),
		expr.Function("is_empty", func(args ...any) (any, error) {
			return isEmpty(args[0]), nil
		}),
		expr.Function("is_object", func(args ...any) (any, error) {
			_, isRec := args[0].(map[string]any)
			return isRec, nil
		}),
		expr.Function("is_array", func(args ...any) (any, error) {
			_, isArr := args[0].([]any)
			return isArr, nil
		}),
		expr.Function("floor", func(args ...any) (any, error) {
			return floorFn(args[0])
		}),
	}
}
