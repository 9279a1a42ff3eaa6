// Package crawler fetches metadata, user-data, and vendor-data from a
// selected datasource's endpoints under explicit time budgets.
//
// Every network operation carries a per-request timeout and a bounded
// retry count under an overall max-wait budget; there is no unbounded
// retry anywhere in this package. A negative max-wait is the documented
// sentinel for "try exactly once, no retries".
//
// Redundant endpoints for the same datasource are probed as a controlled
// fan-out with a shared deadline: attempts run concurrently and all
// outstanding attempts are abandoned once the budget elapses or one
// succeeds.
package crawler
