// Package state owns the persisted boot state tree: per-instance
// directories, the current-instance pointer, run-once semaphores, and
// atomic file writes for externally readable records.
//
// Layout under the state root (default /var/lib/cloudseed):
//
//	data/instance-id            current instance id
//	data/previous-instance-id   instance id from the prior boot, "" on first
//	data/status.json            structured status (written atomically)
//	sem/                        global semaphores (frequency ONCE)
//	instances/<iid>/            per-instance state
//	instances/<iid>/sem/        per-instance semaphores (PER_INSTANCE)
//	instances/<iid>/datasource  cached datasource name
//	instances/<iid>/merged.yaml merged configuration dump
//	instances/<iid>/boot-finished
//	instance                    symlink to instances/<iid>
//
// Instance state is superseded, never destroyed, on instance-id change;
// only an explicit clean removes it.
package state
