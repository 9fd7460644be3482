package m3w

import "sync"

// parallelRows splits rows [0, n) into contiguous ranges, one per worker, and
// runs fn on each range concurrently. Ranges never overlap, so fn may write
// to per-row output slots without synchronization. With workers <= 1 (or a
// single row) fn runs once on the calling goroutine.
func parallelRows(n, workers int, fn func(start, end int)) {
	if workers <= 1 || n <= 1 {
		fn(0, n)
		return
	}

	var wg sync.WaitGroup
	rowsPerWorker := (n + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		if start >= n {
			break
		}
		end := min(start+rowsPerWorker, n)

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}

	wg.Wait()
}
