// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package util

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// MaxDecompressedSize caps request bodies after decompression (10 MiB).
const MaxDecompressedSize = 10 * 1024 * 1024

// DecompressIfGzipped gunzips the body when gzipped is set, enforcing
// the decompressed size cap. Plain bodies over the cap are rejected
// before decoding.
func DecompressIfGzipped(body []byte, gzipped bool) ([]byte, error) {
	if !gzipped {
		if len(body) > MaxDecompressedSize {
			log.WithFields(log.Fields{"bytes": len(body), "max": MaxDecompressedSize}).
				Error("uncompressed body exceeds limit")
			return nil, fmt.Errorf("exceeds %dMB limit", MaxDecompressedSize/1024/1024)
		}
		return body, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Error("gzip decompression failed")
		return nil, err
	}
	defer zr.Close()

	// Read one byte past the cap so an exactly-at-cap body is accepted
	// while anything larger is rejected.
	out, err := io.ReadAll(io.LimitReader(zr, MaxDecompressedSize+1))
	if err != nil {
		log.WithError(err).Error("gzip decompression failed")
		return nil, err
	}
	if len(out) > MaxDecompressedSize {
		log.WithFields(log.Fields{"bytes": len(out), "max": MaxDecompressedSize}).
			Error("decompressed size exceeds limit")
		return nil, fmt.Errorf("exceeds %dMB limit", MaxDecompressedSize/1024/1024)
	}
	return out, nil
}
