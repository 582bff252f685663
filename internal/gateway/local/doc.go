// Package local implements the notification gateway in-process.
//
// # Overview
//
// Scheduled requests are kept in two pools, both keyed by identifier with
// upsert semantics:
//
//   - calendar pool: DailyCalendar and Repeating rules, registered as
//     robfig/cron entries ("M H * * *" specs and "@every" intervals) in
//     the configured timezone;
//   - one-shot pool: OneShot and CalendarDate rules, realized as
//     time.AfterFunc timers with per-identifier version counters so a
//     replaced request's stale callback is ignored.
//
// When a request fires, the gateway hands the content to a Deliverer (the
// async notifier pipeline) and, for one-shot rules, moves the identifier
// from the pending set to a bounded delivered history. CancelPending only
// touches the pending pools; CancelAll additionally forgets delivered
// history for the given identifiers.
//
// # Lifecycle
//
// The service can be started and stopped at runtime. Definitions survive a
// stop; Start() re-registers cron entries and rebuilds one-shot timers
// (past-due timers fire immediately).
package local
