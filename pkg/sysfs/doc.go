// Package sysfs provides host introspection helpers for datasource
// detection: a configurable key-value file parser, DMI asset reading from
// /sys/class/dmi/id, and kernel command line inspection.
//
// All readers accept an overridable filesystem root so tests can point them
// at a synthesized tree instead of the live host.
package sysfs
