// Package service implements the monitoring session of apimon.
//
// Overview
// A Session is configured with a host, a trigger schedule and a log folder.
// Start launches a polling loop which asks the schedule once per poll
// interval whether a run is due. Every due trigger dispatches one run on its
// own goroutine; the loop never waits for runs, so runs may overlap unless
// Settings.MaxConcurrentRuns limits them. Shortly after Start one run is
// dispatched unconditionally, so the operator sees a report without waiting
// for the first scheduled time.
//
// A run executes the diagnostic pipeline against the host and stores the
// report with the ReportWriter. Run failures never reach the loop, they are
// reported through the status callback.
//
// Data flow:
//
//   Session              loop                     run
//      |                   |                        |
//   Start() ------------->| poll / start delay     |
//      |                   | Due(now) -> dispatch ->| Prepare(dir)
//      |                   |                        | Pipeline.Execute(host)
//      |                   |                        | Writer.Write(report)
//      |<----------------- status (asynchronous) ---|
//   Stop() -------------->| exit                   | (keeps running)
//
// Invariants:
//   - At most one loop per Session.
//   - Stop does not cancel in-flight runs; Wait joins them.
//   - The status callback is called from a single goroutine, in order, and
//     never blocks the loop or a run.
//   - The schedule is rebuilt on every Start, so triggers pending before Stop
//     are dropped.
package service
