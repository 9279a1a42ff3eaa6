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

package stages

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyFunc reports stage progress to the service manager.
type NotifyFunc func(state string)

// NotifyServiceManager sends an sd_notify message. Outside a systemd
// unit (NOTIFY_SOCKET unset) it is a no-op, so the same binary works
// under other init systems.
func NotifyServiceManager(notifyState string) {
	sent, err := daemon.SdNotify(false, notifyState)
	if err != nil {
		slog.Debug("sd_notify failed", "error", err)
		return
	}
	if sent {
		slog.Debug("notified service manager", "state", notifyState)
	}
}
