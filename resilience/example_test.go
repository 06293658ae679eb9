package resilience_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/flightcrawl/core/resilience"
)

func ExampleNewBulkhead() {
	bh := resilience.NewBulkhead(resilience.BulkheadConfig{
		MaxConcurrent: 2,
		MaxWait:       0, // No waiting
	})

	ctx := context.Background()

	// Two routes crawl concurrently; with MaxWait 0 a third is rejected at once.
	err1 := bh.Acquire(ctx)
	err2 := bh.Acquire(ctx)
	err3 := bh.Acquire(ctx) // Should fail

	fmt.Println("Route 1:", err1 == nil)
	fmt.Println("Route 2:", err2 == nil)
	fmt.Println("Route 3:", errors.Is(err3, resilience.ErrBulkheadFull))

	bh.Release()

	err4 := bh.Acquire(ctx)
	fmt.Println("Route 3 after release:", err4 == nil)
	// Output:
	// Route 1: true
	// Route 2: true
	// Route 3: true
	// Route 3 after release: true
}

func ExampleBulkhead_Execute() {
	bh := resilience.NewBulkhead(resilience.BulkheadConfig{
		MaxConcurrent: 4,
	})

	err := bh.Execute(context.Background(), func(ctx context.Context) error {
		// crawl one route under the bulkhead's slot
		return nil
	})

	fmt.Println("Crawl attempt succeeded:", err == nil)
	// Output:
	// Crawl attempt succeeded: true
}

func ExampleBulkhead_Metrics() {
	bh := resilience.NewBulkhead(resilience.BulkheadConfig{
		MaxConcurrent: 5,
	})

	ctx := context.Background()
	_ = bh.Acquire(ctx)
	_ = bh.Acquire(ctx)

	metrics := bh.Metrics()
	fmt.Printf("Active: %d, Available: %d, MaxConcurrent: %d\n",
		metrics.Active, metrics.Available, metrics.MaxConcurrent)
	// Output:
	// Active: 2, Available: 3, MaxConcurrent: 5
}
