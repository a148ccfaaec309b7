// Package worker executes claimed jobs against external providers. Slot
// loops claim under a lease and renew it on a heartbeat; execution walks the
// tier's provider route with whole-file or chunked strategies and reports
// terminal results back through the job store's guarded transitions.
package worker
