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

package status

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// RenderShort returns the one-line human summary.
func (r *Report) RenderShort() string {
	return fmt.Sprintf("status: %s", r.Status)
}

// RenderLong returns the multi-line human report used by "status --long".
func (r *Report) RenderLong() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "status: %s\n", r.Status)
	fmt.Fprintf(&sb, "boot_status_code: %s\n", r.BootStatusCode)
	if r.Datasource != "" {
		fmt.Fprintf(&sb, "datasource: %s\n", r.Datasource)
	}
	fmt.Fprintf(&sb, "errors: %d\n", len(r.Errors))
	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "  - %s\n", e)
	}
	renderRecoverable(&sb, "", r.RecoverableErrors)

	for _, name := range StageNames {
		slot := r.stageSlot(name)
		if slot == nil || *slot == nil {
			continue
		}
		s := *slot

		fmt.Fprintf(&sb, "%s:\n", stageHeading(name))
		fmt.Fprintf(&sb, "  start: %s\n", epochString(s.Start))
		if s.Finished > 0 {
			fmt.Fprintf(&sb, "  finished: %s\n", epochString(s.Finished))
		} else {
			fmt.Fprintf(&sb, "  finished: (running)\n")
		}
		for _, e := range s.Errors {
			fmt.Fprintf(&sb, "  error: %s\n", e)
		}
		renderRecoverable(&sb, "  ", s.RecoverableErrors)
	}

	return sb.String()
}

// stageHeading turns "init-local" into "Init Local".
func stageHeading(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "-", " "))
}

func renderRecoverable(sb *strings.Builder, indent string, m map[Severity][]string) {
	if len(m) == 0 {
		return
	}

	sevs := make([]string, 0, len(m))
	for sev := range m {
		sevs = append(sevs, string(sev))
	}
	sort.Strings(sevs)

	for _, sev := range sevs {
		msgs := m[Severity(sev)]
		if len(msgs) == 0 {
			continue
		}
		fmt.Fprintf(sb, "%srecoverable_errors (%s):\n", indent, sev)
		for _, msg := range msgs {
			fmt.Fprintf(sb, "%s  - %s\n", indent, msg)
		}
	}
}

func epochString(epoch float64) string {
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339)
}
