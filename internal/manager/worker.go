// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package manager

import (
	"fmt"
	"io"

	log "github.com/sandia-minimega/minimega/v2/pkg/minilog"
)

// transferChunkSize bounds each PUSH frame's payload.
const transferChunkSize = 4096

// worker drains the job queue until the drained sentinel appears. Transfer
// failures are local to one job: logged, never retried, never propagated.
func (m *Manager) worker(id int) {
	defer m.workers.Done()

	log.Debug("worker %v starting", id)

	for {
		job, ok := m.queue.Pop()
		if !ok {
			log.Debug("worker %v exiting", id)
			return
		}

		m.transfer(id, job)
	}
}

// transfer copies one file: PULL from the source server, then a PUSH frame
// sequence to the destination server, streaming through a fixed-size buffer.
// Each stage writes exactly one transfer log record; a failed pull abandons
// the job before the push stage begins.
func (m *Manager) transfer(id int, job Job) {
	src := job.SrcDesc()
	dst := job.DstDesc()

	pr, err := m.client.Pull(job.SrcHost, job.SrcPort, fmt.Sprintf("%v/%v", job.SrcDir, job.Filename))
	if err != nil {
		log.Debug("worker %v pull %v: %v", id, src, err)
		m.tlog.Record(src, dst, id, "PULL", "FAIL", "pull error")
		return
	}
	m.tlog.Record(src, dst, id, "PULL", "OK", "done")

	pusher, err := m.client.OpenPush(job.DstHost, job.DstPort, fmt.Sprintf("%v/%v", job.DstDir, job.Filename))
	if err != nil {
		log.Debug("worker %v push %v: %v", id, dst, err)
		pr.Close()
		m.tlog.Record(src, dst, id, "PUSH", "FAIL", "push error")
		return
	}

	buf := make([]byte, transferChunkSize)
	sent, err := io.CopyBuffer(pusher, pr, buf)

	cerr := pusher.Close()
	pr.Close()

	if err != nil || cerr != nil || sent != pr.Size {
		log.Debug("worker %v forwarded %v of %v bytes for %v: %v", id, sent, pr.Size, dst, err)
		m.tlog.Record(src, dst, id, "PUSH", "FAIL", "push error")
		return
	}

	m.tlog.Record(src, dst, id, "PUSH", "OK", "done")
}
