// Package connectivity tracks whether the billing platform is reachable.
//
// A Monitor exposes the last known State and a replaying stream of changes.
// HTTPMonitor probes a URL on an interval; ManualMonitor is driven by the
// embedding application or by tests.
package connectivity
