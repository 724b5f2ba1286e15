// Package scheduler runs actions later from a single worker goroutine.
//
// Actions are registered as one-shots (ScheduleAfter, ScheduleAt) or as
// repeating series (RepeatEvery, RepeatAt). Registration never blocks
// on the worker. The worker sleeps until the earliest deadline and is
// woken early whenever something is inserted, so an idle scheduler
// costs nothing.
//
// A series keeps one Handle for its whole life. Each firing computes
// the next deadline from the previous scheduled time, re-arms, and only
// then runs the action, so a slow action does not shift the cadence.
package scheduler
