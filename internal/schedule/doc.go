// Package schedule models the closed set of recurrence rules a job can use.
//
// A Rule is a pure value; due/next computations never look at wall clock
// themselves, callers pass the reference times in. Rules compile to 5-field
// cron expressions and occurrence math is delegated to the cron parser, so
// boundary semantics ("minute divisible by N", "minute past the hour") match
// cron exactly.
package schedule
