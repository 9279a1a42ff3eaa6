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

package datasource

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/cloudseed/cloudseed/pkg/crawler"
	"github.com/cloudseed/cloudseed/pkg/errors"
	"github.com/cloudseed/cloudseed/pkg/sysfs"
)

// defaultEC2MetadataURLs are the link-local IMDS endpoints, IPv4 first.
var defaultEC2MetadataURLs = []string{
	"http://169.254.169.254",
	"http://[fd00:ec2::254]",
}

// ec2APIVersion pins the IMDS path version the crawler walks.
const ec2APIVersion = "2009-04-04"

// ec2MetadataLeaves are the meta-data keys crawled into the payload.
// Keys absent on a given instance type map to recoverable errors.
var ec2MetadataLeaves = []string{
	"instance-id",
	"instance-type",
	"local-hostname",
	"local-ipv4",
	"public-hostname",
	"public-ipv4",
	"ami-id",
	"placement/availability-zone",
}

// EC2 crawls the EC2-style instance metadata service. Detection relies on
// the DMI system UUID, which EC2 and compatible platforms prefix with
// "ec2".
type EC2 struct {
	urls    []string
	client  *crawler.Client
	dmi     *sysfs.DMI
	cmdline *sysfs.Cmdline
}

// NewEC2 creates the IMDS datasource.
func NewEC2(s Settings) *EC2 {
	s = s.withDefaults()
	urls := s.MetadataURLs
	if len(urls) == 0 {
		urls = defaultEC2MetadataURLs
	}
	return &EC2{
		urls: urls,
		client: crawler.NewClient(
			crawler.WithMaxWait(s.MaxWait),
			crawler.WithTimeout(s.Timeout),
			crawler.WithRetries(*s.Retries),
		),
		dmi:     s.DMI,
		cmdline: s.Cmdline,
	}
}

func (e *EC2) Name() string { return NameEC2 }

func (e *EC2) RequiresNetwork() bool { return true }

func (e *EC2) Detect(_ context.Context) (bool, error) {
	uid, err := e.dmi.GetLower(sysfs.DMISystemUUID)
	if err == nil && strings.HasPrefix(uid, "ec2") {
		return true, nil
	}

	serial, err := e.dmi.GetLower(sysfs.DMISerialNumber)
	if err == nil && strings.HasSuffix(serial, ".amazon") {
		return true, nil
	}

	name, ok, err := e.cmdline.DatasourceOverride()
	if err == nil && ok && name == NameEC2 {
		return true, nil
	}

	return false, nil
}

func (e *EC2) Crawl(ctx context.Context) (*Payload, error) {
	// Settle on one endpoint by racing the instance-id leaf, then walk
	// the rest of the surface through the winner.
	probeURLs := make([]string, len(e.urls))
	for i, u := range e.urls {
		probeURLs[i] = e.leafURL(u, "meta-data/instance-id")
	}

	winner, instanceID, err := e.client.WaitForAny(ctx, probeURLs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnavailable, "metadata service unreachable", err)
	}
	base := strings.TrimSuffix(winner, "/meta-data/instance-id")
	base = strings.TrimSuffix(base, "/"+ec2APIVersion)

	p := &Payload{
		DatasourceName: NameEC2,
		InstanceID:     strings.TrimSpace(string(instanceID)),
		Metadata:       map[string]any{},
	}

	for _, leaf := range ec2MetadataLeaves {
		body, err := e.client.Fetch(ctx, e.leafURL(base, "meta-data/"+leaf))
		if err != nil {
			if !isNotFound(err) {
				p.Recoverable = append(p.Recoverable,
					fmt.Errorf("meta-data leaf %s: %w", leaf, err))
			}
			continue
		}
		setNestedField(p.Metadata, leaf, strings.TrimSpace(string(body)))
	}

	// user-data is optional; 404 means none was supplied.
	body, err := e.client.Fetch(ctx, e.leafURL(base, "user-data"))
	switch {
	case err == nil:
		p.UserData = body
	case !isNotFound(err):
		p.Recoverable = append(p.Recoverable, fmt.Errorf("user-data: %w", err))
	}

	return p, nil
}

func (e *EC2) leafURL(base, path string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(base, "/"), ec2APIVersion, path)
}

// setNestedField expands slash-separated leaves like
// "placement/availability-zone" into nested maps.
func setNestedField(m map[string]any, leaf, value string) {
	parts := strings.Split(leaf, "/")
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func isNotFound(err error) bool {
	var serr *errors.StructuredError
	return stderrors.As(err, &serr) && serr.Code == errors.ErrCodeNotFound
}
