package utils

import "sync"

// RunBounded calls fn once for every index in [0, n) with at most limit
// calls in flight, and returns when all of them have finished. A limit
// below 2 runs the calls in index order on the caller's goroutine.
func RunBounded(n, limit int, fn func(i int)) {
	if limit < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	slots := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		slots <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			fn(i)
		}()
	}
	wg.Wait()
}
