// Package resilience provides the process-wide concurrency bound for
// crawl attempts.
//
// A site's own pace is governed by ratelimit.Limiter and breaker.Manager
// (one limiter/breaker pair per adapter); [Bulkhead] sits above both,
// capping how many crawl attempts run at once across every adapter so a
// burst of due jobs can't exhaust outbound connections or local memory.
// safety.SafetyCrawler wraps an adapter's Crawl call in a Bulkhead via
// WithConcurrencyLimit.
//
// # Quick Start
//
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{
//	    MaxConcurrent: 4,
//	    MaxWait:       2 * time.Second,
//	})
//
//	err := bh.Execute(ctx, func(ctx context.Context) error {
//	    return crawlOneRoute(ctx)
//	})
//
// # Thread Safety
//
// [Bulkhead] is safe for concurrent use: Acquire/Release/Execute/Metrics
// all go through a channel-based semaphore plus a mutex for the
// bookkeeping counters.
//
// # Error Handling
//
//   - [ErrBulkheadFull]: returned by Acquire/Execute when no slot opens
//     up within MaxWait (or immediately, if MaxWait is zero)
package resilience
