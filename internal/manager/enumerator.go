// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package manager

import (
	log "github.com/sandia-minimega/minimega/v2/pkg/minilog"
)

// enumerate lists the mapping's source directory and queues one copy job per
// filename, in the order the source reports them. The push is the fabric's
// backpressure channel: a full queue stalls this goroutine, which in turn
// stalls the LIST socket read. Enumeration is one-shot; the mapping stays
// registered afterwards but produces no further jobs.
func (m *Manager) enumerate(mp Mapping) {
	log.Debug("enumerating %v", mp.SrcSpec())

	count := 0
	err := m.client.List(mp.SrcHost, mp.SrcPort, mp.SrcPath, func(name string) bool {
		if !m.queue.Push(mp.job(name)) {
			log.Debug("queue draining, discarding job for %v", name)
			return false
		}
		count++
		return true
	})
	if err != nil {
		log.Error("enumerate %v: %v", mp.SrcSpec(), err)
		return
	}

	log.Debug("enumerated %v: %v jobs", mp.SrcSpec(), count)
}
