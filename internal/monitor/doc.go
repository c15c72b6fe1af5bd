// Package monitor runs integrity validation on a schedule and watches the
// results.
//
// OptimizedValidator wraps integrity.Validator with a result cache, a
// concurrency bound, a memory guard, stats and Prometheus metrics.
// Scheduler drives it on a ticker, keeps a history ring for trend analysis,
// raises alerts on status transitions, optionally runs the repair engine
// and publishes events on a broadcast bus.
//
// CRITICAL: Stats is shared by foreground and background checks. Always go
// through its methods; never copy the struct while checks are running.
package monitor
