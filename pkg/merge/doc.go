// Package merge implements the recursive configuration merge engine used to
// combine base configuration, vendor-data, and user-data cloud-config
// documents into a single mapping.
//
// # Model
//
// Decoded YAML values are lifted into a tagged union (Value) with three
// variants: map, list, and scalar. Merging dispatches on the destination
// value's variant to the matching merger (dict/list/string); mismatched
// variants keep the original value and discard the incoming one.
//
// # Strategies
//
// Each merge pass is governed by a Strategy, expressed in the same string
// grammar accepted in cloud-config documents:
//
//	list(append)+dict(no_replace,recurse_list)+str()
//
// The default strategy recurses into nested dicts and replaces lists and
// strings wholesale. A document can declare its own strategy under the
// "merge_how" (or legacy "merge_type") key; that declaration governs the
// merge of the NEXT document into the accumulated result, not the document
// carrying it. MergeMany threads the current strategy through an explicit
// fold over the ordered document list, so merging is a pure function of its
// inputs and is deterministic for identical input sequences.
package merge
