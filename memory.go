package failuretable

import "github.com/anacrolix/log"

// OnLowMemory implements spec.md section 4.6's low-memory response: halve the
// entries index by popping the LRU oldest until size is halved. The
// offers index is untouched - it is smaller and, per spec.md, more
// valuable.
func (ft *FailureTable) OnLowMemory() {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	target := ft.entries.Len() / 2
	popped := 0
	for ft.entries.Len() > target {
		if _, _, ok := ft.entries.PopOldest(); !ok {
			break
		}
		popped++
	}
	ft.stats.lowMemoryHits.Add(1)
	ft.stats.entriesEvicted.Add(int64(popped))
	ft.updateSizeGauges()
	ft.logger.WithDefaultLevel(log.Warning).Printf("low memory: shed %d entries", popped)
}

// OnOOM implements spec.md section 4.6's OOM response: clear the entries index
// entirely. The offers index is left alone for the same reason as
// OnLowMemory.
func (ft *FailureTable) OnOOM() {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	popped := 0
	for {
		if _, _, ok := ft.entries.PopOldest(); !ok {
			break
		}
		popped++
	}
	ft.stats.oomHits.Add(1)
	ft.stats.entriesEvicted.Add(int64(popped))
	ft.updateSizeGauges()
	ft.logger.WithDefaultLevel(log.Error).Printf("OOM: cleared %d entries", popped)
}
