// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package decode turns raw OTLP and HEC payloads into IR records.
//
// Two wire formats are supported per signal: OTLP/JSON and
// OTLP/protobuf. The content type is authoritative; with FormatAuto a
// first-byte heuristic picks the codec to try first and the other is
// attempted only when the first fails to decode.
package decode

import (
	"fmt"
	"unicode"
)

// Format selects the wire codec.
type Format int

const (
	FormatAuto Format = iota
	FormatJSON
	FormatProtobuf
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatProtobuf:
		return "protobuf"
	}
	return "auto"
}

// FormatFromContentType maps a Content-Type header to a Format.
func FormatFromContentType(ct string) Format {
	switch ct {
	case "application/json":
		return FormatJSON
	case "application/x-protobuf", "application/protobuf":
		return FormatProtobuf
	}
	return FormatAuto
}

// looksLikeJSON inspects the first non-whitespace byte.
func looksLikeJSON(body []byte) bool {
	for _, b := range body {
		if unicode.IsSpace(rune(b)) {
			continue
		}
		return b == '{' || b == '['
	}
	return false
}

type decodeFn func([]byte) ([]map[string]any, error)

// autoDecode runs the heuristic-preferred codec and falls back to the
// other on decode failure, surfacing both errors on double failure.
func autoDecode(body []byte, jsonDec, protoDec decodeFn) ([]map[string]any, error) {
	if looksLikeJSON(body) {
		records, jsonErr := jsonDec(body)
		if jsonErr == nil {
			return records, nil
		}
		records, protoErr := protoDec(body)
		if protoErr == nil {
			return records, nil
		}
		return nil, fmt.Errorf("json decode failed: %v; protobuf fallback failed: %v", jsonErr, protoErr)
	}

	records, protoErr := protoDec(body)
	if protoErr == nil {
		return records, nil
	}
	records, jsonErr := jsonDec(body)
	if jsonErr == nil {
		return records, nil
	}
	return nil, fmt.Errorf("protobuf decode failed: %v; json fallback failed: %v", protoErr, jsonErr)
}
