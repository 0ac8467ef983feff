package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aretw0/keel"
	"github.com/aretw0/keel/pkg/core"
)

func main() {
	count := flag.Int("count", 10000, "Number of entries to append")
	workers := flag.Int("workers", 4, "Concurrent appenders")
	category := flag.String("category", "bench", "Audit category")
	keep := flag.Bool("keep", false, "Keep the benchmark root after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "keel_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	eng, err := keel.New(benchDir, keel.WithLogger(logger))
	if err != nil {
		panic(err)
	}

	ctx := context.Background()

	// Run 1: appends, serialized per category by the log itself.
	fmt.Printf("Appending %d entries to %q with %d workers...\n", *count, *category, *workers)
	jobs := make(chan int)
	var wg sync.WaitGroup
	startAppend := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				details := core.Object{"n": core.Int(i), "payer": core.String("bench")}
				if _, err := eng.Log.Append(ctx, *category, "BENCH", details); err != nil {
					panic(err)
				}
			}
		}()
	}
	for i := 0; i < *count; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	appendDuration := time.Since(startAppend)

	// Run 2: full chain replay.
	fmt.Println("Verifying chain...")
	startVerify := time.Now()
	res, err := eng.Log.Verify(ctx, *category)
	if err != nil {
		panic(err)
	}
	verifyDuration := time.Since(startVerify)

	// Run 3: atomic writes through the store.
	writes := *count / 10
	if writes == 0 {
		writes = 1
	}
	fmt.Printf("Writing %d resources...\n", writes)
	startWrite := time.Now()
	for i := 0; i < writes; i++ {
		key := fmt.Sprintf("records/r-%d", i%100)
		if err := eng.Store.Write(ctx, key, core.Object{"n": core.Int(i)}); err != nil {
			panic(err)
		}
	}
	writeDuration := time.Since(startWrite)

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d entries, %d writes):\n", *count, writes)
	fmt.Printf("  Append: %v (%.0f entries/s)\n", appendDuration, float64(*count)/appendDuration.Seconds())
	fmt.Printf("  Verify: %v (valid=%v, checked=%d)\n", verifyDuration, res.Valid, res.EntriesChecked)
	fmt.Printf("  Write:  %v (%.0f writes/s)\n", writeDuration, float64(writes)/writeDuration.Seconds())
	fmt.Printf("--------------------------------------------------\n")
}
