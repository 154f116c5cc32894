package scanner

import "context"

// EnumerateIPs emits one ScanJob per address and closes the channel when done
// or when ctx is cancelled. Duplicate addresses are emitted once.
func EnumerateIPs(ctx context.Context, ips []string, source string) <-chan ScanJob {
	jobs := make(chan ScanJob)

	go func() {
		defer close(jobs)

		seen := make(map[string]struct{}, len(ips))
		for _, ip := range ips {
			if _, dup := seen[ip]; dup {
				continue
			}
			seen[ip] = struct{}{}

			select {
			case <-ctx.Done():
				return
			case jobs <- ScanJob{IP: ip, Source: source}:
			}
		}
	}()

	return jobs
}
