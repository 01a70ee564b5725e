// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package filer implements the file server wire protocol, both sides. A
// request is a single line terminated by '\n' carrying one of three verbs:
//
//	LIST <dir>              enumerate regular files in a directory
//	PULL <path>             stream the content of a file
//	PUSH <path> <n> <data>  streaming write, one frame per chunk
//
// LIST and PULL are one-shot: the server answers and closes. PUSH is a frame
// sequence on a single connection; the write handle is scoped to that
// connection and closed when the connection ends, whether or not a
// terminating zero-length frame arrived.
package filer

import (
	"fmt"
	"net"

	log "github.com/sandia-minimega/minimega/v2/pkg/minilog"
)

// Server serves LIST/PULL/PUSH requests on a TCP port. Paths in requests are
// resolved by the host OS as-is, relative paths against the daemon's working
// directory.
type Server struct {
	ln net.Listener
}

// Listen binds the server to the given TCP port. Port 0 picks an ephemeral
// port, which Addr reports.
func Listen(port int) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		return nil, err
	}

	log.Info("filer listening on %v", ln.Addr())

	return &Server{ln: ln}, nil
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts and handles connections until the listener is closed. Each
// connection carries one logical request and is handled in its own goroutine.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			log.Debug("filer accept: %v", err)
			return
		}

		go s.handle(conn)
	}
}

// Close shuts down the listener. In-flight connections finish on their own.
func (s *Server) Close() error {
	return s.ln.Close()
}
