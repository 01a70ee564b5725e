// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package manager

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Timestamp layout used in transfer records and control replies.
const timeFormat = "2006-01-02 15:04:05"

// TransferLog is the append-only record of worker transfer outcomes. One
// record per stage:
//
//	[ts] [src] [dst] [worker] [PULL|PUSH] [OK|FAIL] [msg]
//
// Records are serialised by a mutex and written straight through to the
// file with no user-space buffering, so a record has reached the file as
// soon as Record returns. The file is not synced to disk.
type TransferLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenTransferLog creates or truncates the transfer log at path.
func OpenTransferLog(path string) (*TransferLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &TransferLog{f: f}, nil
}

// Record appends one transfer record.
func (l *TransferLog) Record(src, dst string, worker int, stage, status, msg string) {
	ts := time.Now().Format(timeFormat)

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.f, "[%v] [%v] [%v] [%v] [%v] [%v] [%v]\n", ts, src, dst, worker, stage, status, msg)
}

// Close closes the underlying file.
func (l *TransferLog) Close() error {
	return l.f.Close()
}
