// Copyright (c) 2025, the cloudseed authors.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package crawler

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"
)

// Cloud-config sentinels and content types.
const (
	cloudConfigHeader      = "#cloud-config"
	cloudConfigContentType = "text/cloud-config"
)

// gzipMagic is the two-byte gzip stream header.
var gzipMagic = []byte{0x1f, 0x8b}

// Part is one decoded unit of a composite payload.
type Part struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Decompress transparently gunzips the payload when it carries the gzip
// magic; any other payload is returned unchanged. Cloud metadata services
// commonly gzip user-data to fit provider size limits.
func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	return out, nil
}

// SplitParts decodes a possibly-composite payload into its parts. MIME
// multipart payloads are split per part; anything else is returned as a
// single part. Unreadable parts are dropped and reported in the returned
// error list; readable parts are always kept (partial data failures are
// recoverable).
func SplitParts(data []byte) ([]Part, []error) {
	decoded, err := Decompress(data)
	if err != nil {
		// The payload as a whole is unreadable.
		return nil, []error{err}
	}

	msg, err := mail.ReadMessage(bytes.NewReader(decoded))
	if err != nil {
		// Not an RFC 822 envelope; treat as a single opaque part.
		return []Part{{ContentType: sniffContentType(decoded), Body: decoded}}, nil
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return nil, []error{fmt.Errorf("failed to read message body: %w", readErr)}
		}
		ct := mediaType
		if ct == "" {
			ct = sniffContentType(body)
		}
		return []Part{{ContentType: ct, Body: body}}, nil
	}

	var parts []Part
	var recoverable []error

	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			recoverable = append(recoverable,
				fmt.Errorf("failed to read multipart section: %w", err))
			break
		}

		body, err := io.ReadAll(p)
		if err != nil {
			recoverable = append(recoverable,
				fmt.Errorf("failed to read part %q: %w", p.FileName(), err))
			continue
		}

		// Parts may themselves be gzipped.
		body, err = Decompress(body)
		if err != nil {
			recoverable = append(recoverable,
				fmt.Errorf("failed to decompress part %q: %w", p.FileName(), err))
			continue
		}

		ct, _, _ := mime.ParseMediaType(p.Header.Get("Content-Type"))
		if ct == "" {
			ct = sniffContentType(body)
		}

		parts = append(parts, Part{
			ContentType: ct,
			Filename:    p.FileName(),
			Body:        body,
		})
	}

	return parts, recoverable
}

// sniffContentType classifies a bare payload by its leading bytes.
func sniffContentType(body []byte) string {
	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	if strings.HasPrefix(trimmed, cloudConfigHeader) {
		return cloudConfigContentType
	}
	if strings.HasPrefix(trimmed, "#!") {
		return "text/x-shellscript"
	}
	return "text/plain"
}

// CloudConfigDocs extracts every cloud-config document from a payload,
// preserving part order. Each document is a decoded YAML mapping ready for
// the merge engine. Malformed documents are reported as recoverable
// errors; well-formed documents in the same payload are still returned.
func CloudConfigDocs(data []byte) ([]map[string]any, []error) {
	parts, recoverable := SplitParts(data)

	var docs []map[string]any
	for _, part := range parts {
		if part.ContentType != cloudConfigContentType {
			continue
		}

		var doc map[string]any
		if err := yaml.Unmarshal(part.Body, &doc); err != nil {
			recoverable = append(recoverable,
				fmt.Errorf("malformed cloud-config part %q: %w", part.Filename, err))
			continue
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}

	return docs, recoverable
}
