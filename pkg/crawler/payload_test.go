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
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func multipartPayload(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for ct, content := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", ct)
		pw, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes()
}

func TestDecompressPassthrough(t *testing.T) {
	plain := []byte("#cloud-config\nhostname: node-1\n")
	out, err := Decompress(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestDecompressGzip(t *testing.T) {
	plain := []byte("#cloud-config\nhostname: node-1\n")
	out, err := Decompress(gzipBytes(t, plain))
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestDecompressCorrupt(t *testing.T) {
	_, err := Decompress([]byte{0x1f, 0x8b, 0xff, 0x00})
	assert.Error(t, err)
}

func TestSplitPartsBareCloudConfig(t *testing.T) {
	parts, errs := SplitParts([]byte("#cloud-config\npackages: [curl]\n"))
	require.Empty(t, errs)
	require.Len(t, parts, 1)
	assert.Equal(t, cloudConfigContentType, parts[0].ContentType)
}

func TestSplitPartsShellScript(t *testing.T) {
	parts, errs := SplitParts([]byte("#!/bin/sh\necho hello\n"))
	require.Empty(t, errs)
	require.Len(t, parts, 1)
	assert.Equal(t, "text/x-shellscript", parts[0].ContentType)
}

func TestSplitPartsMultipart(t *testing.T) {
	payload := multipartPayload(t, map[string]string{
		"text/cloud-config":  "#cloud-config\nhostname: web-0\n",
		"text/x-shellscript": "#!/bin/sh\ntrue\n",
	})

	parts, errs := SplitParts(payload)
	require.Empty(t, errs)
	require.Len(t, parts, 2)

	types := []string{parts[0].ContentType, parts[1].ContentType}
	assert.Contains(t, types, "text/cloud-config")
	assert.Contains(t, types, "text/x-shellscript")
}

func TestSplitPartsGzippedEnvelope(t *testing.T) {
	payload := gzipBytes(t, multipartPayload(t, map[string]string{
		"text/cloud-config": "#cloud-config\nhostname: web-0\n",
	}))

	parts, errs := SplitParts(payload)
	require.Empty(t, errs)
	require.Len(t, parts, 1)
	assert.Equal(t, "text/cloud-config", parts[0].ContentType)
}

func TestCloudConfigDocsSkipsMalformed(t *testing.T) {
	payload := multipartPayload(t, map[string]string{
		"text/cloud-config; charset=utf-8": "#cloud-config\nhostname: good\n",
	})

	docs, errs := CloudConfigDocs(payload)
	require.Empty(t, errs)
	require.Len(t, docs, 1)
	assert.Equal(t, "good", docs[0]["hostname"])

	// A broken document is reported but does not fail the decode.
	bad := multipartPayload(t, map[string]string{
		"text/cloud-config": "#cloud-config\nhostname: [unclosed\n",
	})
	docs, errs = CloudConfigDocs(bad)
	assert.Empty(t, docs)
	assert.Len(t, errs, 1)
}

func TestCloudConfigDocsIgnoresNonConfigParts(t *testing.T) {
	docs, errs := CloudConfigDocs([]byte("#!/bin/sh\necho nope\n"))
	assert.Empty(t, errs)
	assert.Empty(t, docs)
}
