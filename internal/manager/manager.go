// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package manager implements the coordination engine of the sync fabric: the
// mapping registry, the bounded job queue, the enumerators that turn
// mappings into per-file copy jobs, the worker pool that executes them, and
// the one-shot TCP control listener an operator drives through the console.
package manager

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandia-minimega/minisync/internal/filer"

	log "github.com/sandia-minimega/minimega/v2/pkg/minilog"
)

// Config carries the operator-chosen manager settings.
type Config struct {
	// LogPath is the transfer log file, created or truncated at startup.
	LogPath string

	// ConfigPath is the mapping config file: one mapping per line, two
	// whitespace-separated path@host:port specs. Blank and malformed lines
	// are skipped.
	ConfigPath string

	// Workers is the worker pool size.
	Workers int

	// Port is the control listener port.
	Port int

	// QueueSize is the job queue capacity.
	QueueSize int

	// Timeout, if non-zero, bounds socket dials and reads for enumerators
	// and workers. Zero means block without deadline.
	Timeout time.Duration
}

// Manager owns the registry, queue, worker pool, and control listener.
type Manager struct {
	cfg Config

	registry *Registry
	queue    *Queue
	client   *filer.Client
	tlog     *TransferLog

	ln      net.Listener
	workers sync.WaitGroup

	// set to non-zero by the shutdown command
	isshutdown uint64
}

// New builds a manager and opens its transfer log.
func New(cfg Config) (*Manager, error) {
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %v", cfg.QueueSize)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("worker count must not be negative, got %v", cfg.Workers)
	}

	tlog, err := OpenTransferLog(cfg.LogPath)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:      cfg,
		registry: &Registry{},
		queue:    NewQueue(cfg.QueueSize),
		client:   &filer.Client{Timeout: cfg.Timeout},
		tlog:     tlog,
	}, nil
}

// Listen binds the control listener. Port 0 picks an ephemeral port,
// reported by Addr.
func (m *Manager) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%v", m.cfg.Port))
	if err != nil {
		return err
	}
	m.ln = ln

	log.Info("manager control listening on %v", ln.Addr())

	return nil
}

// Addr returns the control listener address. Valid after Listen.
func (m *Manager) Addr() net.Addr {
	return m.ln.Addr()
}

// Run starts the worker pool, registers the config file mappings, and serves
// control connections until a shutdown command arrives. It then waits for
// the workers to drain the queue, closes the transfer log, and returns.
// Queued jobs are guaranteed to complete; jobs still being enumerated at
// shutdown may be discarded.
func (m *Manager) Run() error {
	for i := 0; i < m.cfg.Workers; i++ {
		m.workers.Add(1)
		go m.worker(i)
	}

	if m.cfg.ConfigPath != "" {
		if err := m.loadConfig(m.cfg.ConfigPath); err != nil {
			return err
		}
	}

	m.controlLoop()

	m.workers.Wait()
	log.Info("all workers finished, closing transfer log")

	return m.tlog.Close()
}

func (m *Manager) shutdown() bool {
	return atomic.LoadUint64(&m.isshutdown) != 0
}

func (m *Manager) setShutdown() {
	atomic.StoreUint64(&m.isshutdown, 1)
}

// loadConfig registers the mappings listed in the config file and starts
// their enumerators. Duplicate rows collapse to a single registration.
func (m *Manager) loadConfig(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		mp, err := ParseMapping(fields[0], fields[1])
		if err != nil {
			log.Warn("config: skipping %q: %v", scanner.Text(), err)
			continue
		}

		m.register(mp)
	}

	return scanner.Err()
}

// register adds a mapping and, if it is new, starts its enumerator. It
// reports whether the mapping was new.
func (m *Manager) register(mp Mapping) bool {
	if !m.registry.Add(mp) {
		return false
	}

	go m.enumerate(mp)
	return true
}

// controlLoop accepts control connections serially; commands are cheap, so
// head-of-line blocking on the listener goroutine is acceptable. The loop
// returns once a shutdown command has been handled.
func (m *Manager) controlLoop() {
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			if m.shutdown() {
				return
			}
			log.Error("control accept: %v", err)
			continue
		}

		stop := m.handleControl(conn)
		conn.Close()

		if stop {
			return
		}
	}
}

// handleControl reads one command line from the connection, dispatches it,
// and writes the reply. It reports whether the manager should stop serving.
func (m *Manager) handleControl(conn net.Conn) bool {
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return false
	}

	line := strings.Trim(string(buf[:n]), "\r\n ")
	log.Debug("control command from %v: %v", conn.RemoteAddr(), line)

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "add":
		if len(fields) != 3 {
			fmt.Fprintf(conn, "Unknown command: %v\n", line)
			return false
		}
		m.controlAdd(conn, fields[1], fields[2])
	case "cancel":
		if len(fields) != 2 {
			fmt.Fprintf(conn, "Unknown command: %v\n", line)
			return false
		}
		m.controlCancel(conn, fields[1])
	case "shutdown":
		m.controlShutdown(conn)
		return true
	default:
		fmt.Fprintf(conn, "Unknown command: %v\n", line)
	}

	return false
}

// controlAdd registers a new mapping and starts its enumerator, or reports
// the duplicate.
func (m *Manager) controlAdd(conn net.Conn, src, dst string) {
	ts := time.Now().Format(timeFormat)

	mp, err := ParseMapping(src, dst)
	if err != nil {
		fmt.Fprintf(conn, "[%v] Invalid sync spec: %v\n", ts, err)
		return
	}

	if !m.register(mp) {
		fmt.Fprintf(conn, "[%v] Sync task already exists: %v => %v\n", ts, src, dst)
		return
	}

	fmt.Fprintf(conn, "[%v] Sync task registered: %v => %v\n", ts, src, dst)
}

// controlCancel removes the first mapping matching the source spec.
// Cancellation is advisory: queued jobs and an in-flight enumeration for the
// mapping are left alone.
func (m *Manager) controlCancel(conn net.Conn, srcSpec string) {
	ts := time.Now().Format(timeFormat)

	if m.registry.Cancel(srcSpec) {
		fmt.Fprintf(conn, "[%v] Sync cancelled for %v\n", ts, srcSpec)
		return
	}

	fmt.Fprintf(conn, "[%v] Sync was already inactive or not found: %v\n", ts, srcSpec)
}

// controlShutdown tells the caller what is about to happen, flips the
// shutdown flag, wakes everything blocked on the queue, and closes the
// listener. Workers keep popping until the queue empties.
func (m *Manager) controlShutdown(conn net.Conn) {
	ts := time.Now().Format(timeFormat)

	fmt.Fprintf(conn, "[%v] Received shutdown request.\n", ts)
	fmt.Fprintf(conn, "[%v] Queued jobs will be handled before exit.\n", ts)
	fmt.Fprintf(conn, "[%v] Workers are finishing up. No new jobs will be accepted.\n", ts)
	fmt.Fprintf(conn, "[%v] Shutdown will complete shortly. Closing control channel.\n", ts)

	m.setShutdown()
	m.queue.Drain()
	m.ln.Close()

	log.Info("shutdown requested, draining %v queued jobs", m.queue.Len())
}
