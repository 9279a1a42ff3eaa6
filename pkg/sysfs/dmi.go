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

package sysfs

import (
	"os"
	"path/filepath"
	"strings"
)

// DMI asset names under /sys/class/dmi/id. Values are exposed by the
// kernel's dmi-id driver; absent files mean the firmware did not populate
// the field (common on non-x86 and some virtualized platforms).
const (
	DMISystemUUID    = "product_uuid"
	DMISerialNumber  = "product_serial"
	DMIProductName   = "product_name"
	DMIChassisAsset  = "chassis_asset_tag"
	DMISystemVendor  = "sys_vendor"
	DMIBoardAssetTag = "board_asset_tag"
)

const defaultDMIRoot = "/sys/class/dmi/id"

// DMI reads firmware identity assets used by datasource detection
// predicates. The zero value reads from the live host.
type DMI struct {
	// Root overrides the dmi-id sysfs directory; empty means the host
	// default. Tests point this at a synthesized tree.
	Root string
}

// Get returns the trimmed content of the named DMI asset. A missing asset
// returns an empty string and no error, since absence is an expected
// platform signal rather than a fault.
func (d *DMI) Get(asset string) (string, error) {
	root := d.Root
	if root == "" {
		root = defaultDMIRoot
	}

	path := filepath.Join(root, asset)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}

	parser := NewParser(WithSkipComments(false))
	val, err := parser.GetValue(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(val), nil
}

// GetLower is Get with the result lower-cased, for case-insensitive
// predicate matching (firmware vendors are inconsistent about casing).
func (d *DMI) GetLower(asset string) (string, error) {
	v, err := d.Get(asset)
	if err != nil {
		return "", err
	}
	return strings.ToLower(v), nil
}
