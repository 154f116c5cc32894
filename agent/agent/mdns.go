package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

var mdnsServices = []string{"_ipp._tcp", "_ipps._tcp", "_printer._tcp"}

// BrowseMDNS browses the printer DNS-SD service types for timeout and returns
// the distinct IPv4 addresses that advertised one, sorted.
func BrowseMDNS(ctx context.Context, timeout time.Duration, log Logger) []string {
	log = orNop(log)
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	bctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = map[string]struct{}{}
		wg   sync.WaitGroup
	)
	for _, svc := range mdnsServices {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			log.Warn("mDNS resolver unavailable", "error", err)
			return nil
		}
		entries := make(chan *zeroconf.ServiceEntry)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-bctx.Done():
					return
				case e, ok := <-entries:
					if !ok {
						return
					}
					mu.Lock()
					for _, ip := range e.AddrIPv4 {
						seen[ip.String()] = struct{}{}
					}
					mu.Unlock()
				}
			}
		}()
		log.Debug("mDNS browse start", "service", svc)
		if err := resolver.Browse(bctx, svc, "local.", entries); err != nil {
			log.Warn("mDNS browse failed", "service", svc, "error", err)
		}
	}
	<-bctx.Done()
	wg.Wait()

	out := make([]string, 0, len(seen))
	for ip := range seen {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}
