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
	"fmt"

	"github.com/google/uuid"

	"github.com/cloudseed/cloudseed/pkg/sysfs"
)

// noneNamespace scopes identities synthesized by the fallback datasource.
var noneNamespace = uuid.MustParse("2f1a6c1e-9d7b-4b4e-8c35-0a6f5b7d9e21")

// noneSentinelID is the fallback identity when the host exposes no stable
// hardware identifier to derive one from.
const noneSentinelID = "iid-cloudseed-none"

// None is the fallback datasource of last resort. It always detects and
// synthesizes an instance identity so the boot pipeline can run module
// stages even on platforms with no metadata service at all. The identity
// is derived from the firmware system UUID when one is readable, so it
// stays stable across boots; PER_INSTANCE modules must not re-arm just
// because the machine rebooted.
type None struct {
	instanceID string
}

// NewNone creates the fallback datasource.
func NewNone(s Settings) *None {
	s = s.withDefaults()

	id := noneSentinelID
	if raw, err := s.DMI.GetLower(sysfs.DMISystemUUID); err == nil && raw != "" {
		id = fmt.Sprintf("iid-cloudseed-%s", uuid.NewSHA1(noneNamespace, []byte(raw)))
	}
	return &None{instanceID: id}
}

func (n *None) Name() string { return NameNone }

func (n *None) RequiresNetwork() bool { return false }

func (n *None) Detect(_ context.Context) (bool, error) { return true, nil }

func (n *None) Crawl(_ context.Context) (*Payload, error) {
	return &Payload{
		DatasourceName: NameNone,
		InstanceID:     n.instanceID,
		Metadata:       map[string]any{"instance-id": n.instanceID},
	}, nil
}
