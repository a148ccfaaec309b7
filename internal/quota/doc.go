// Package quota tracks per-owner usage against tier limits.
//
// Admission asks WouldExceed with an estimate; nothing is reserved. Usage is
// committed exactly once per job on successful completion, keyed by job id so
// replayed completion events accrue nothing. Commits that cannot persist are
// parked and retried by Reconcile rather than blocking workers.
package quota
