// Package scanner runs the two stage probe pipeline over candidate addresses:
// a cheap detection query on every host, then a describe stage for the hosts
// detection accepted.
package scanner

import (
	"context"
	"sync"
)

// ScanJob describes a single address to probe.
type ScanJob struct {
	IP     string
	Source string
}

// DetectionResult carries the outcome of the detection stage. Info is the
// opaque value DetectFunc returned and is only meaningful when IsPrinter is set.
type DetectionResult struct {
	Job       ScanJob
	IsPrinter bool
	Info      interface{}
}

// DeepScanResult carries the outcome of the describe stage for a detected device.
type DeepScanResult struct {
	Detection DetectionResult
	Info      interface{}
	Err       error
}

// ScannerConfig controls worker counts and the per-stage work.
//
// Workers check ctx between jobs only. A DetectFunc or DeepScanFunc call that
// has started runs to its own timeout.
type ScannerConfig struct {
	DetectionWorkers int
	DetectFunc       func(ctx context.Context, job ScanJob) (interface{}, bool)

	DeepScanWorkers int
	DeepScanFunc    func(ctx context.Context, dr DetectionResult) (interface{}, error)
}

const defaultWorkers = 16

// StartDetectionPool consumes jobs and emits one DetectionResult per job. The
// returned channel closes once jobs is drained or ctx is done.
func StartDetectionPool(ctx context.Context, cfg ScannerConfig, jobs <-chan ScanJob) <-chan DetectionResult {
	out := make(chan DetectionResult)
	workers := cfg.DetectionWorkers
	if workers <= 0 {
		workers = defaultWorkers
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				var (
					j  ScanJob
					ok bool
				)
				select {
				case <-ctx.Done():
					return
				case j, ok = <-jobs:
					if !ok {
						return
					}
				}

				res := DetectionResult{Job: j}
				if cfg.DetectFunc != nil {
					res.Info, res.IsPrinter = cfg.DetectFunc(ctx, j)
				}
				select {
				case <-ctx.Done():
					return
				case out <- res:
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// StartDeepScanPool runs DeepScanFunc for every detection result flagged as a
// printer. Other results are dropped.
func StartDeepScanPool(ctx context.Context, cfg ScannerConfig, in <-chan DetectionResult) <-chan DeepScanResult {
	out := make(chan DeepScanResult)
	workers := cfg.DeepScanWorkers
	if workers <= 0 {
		workers = defaultWorkers / 4
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				var (
					dr DetectionResult
					ok bool
				)
				select {
				case <-ctx.Done():
					return
				case dr, ok = <-in:
					if !ok {
						return
					}
				}
				if !dr.IsPrinter {
					continue
				}

				res := DeepScanResult{Detection: dr}
				if cfg.DeepScanFunc != nil {
					res.Info, res.Err = cfg.DeepScanFunc(ctx, dr)
				}
				select {
				case <-ctx.Done():
					return
				case out <- res:
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Scan wires EnumerateIPs through both pools and collects every describe
// result. It returns early, with what was gathered so far, when ctx is done.
func Scan(ctx context.Context, cfg ScannerConfig, ips []string, source string) []DeepScanResult {
	jobs := EnumerateIPs(ctx, ips, source)
	detected := StartDetectionPool(ctx, cfg, jobs)
	described := StartDeepScanPool(ctx, cfg, detected)

	var results []DeepScanResult
	for res := range described {
		results = append(results, res)
	}
	return results
}
