// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package manager

import (
	"fmt"
	"strconv"
	"strings"
)

// Mapping declares that a source directory on one file server is mirrored to
// a destination directory on another. Identity is the full six-tuple.
type Mapping struct {
	SrcPath string
	SrcHost string
	SrcPort int
	DstPath string
	DstHost string
	DstPort int
}

// Job is a single-file copy request flowing through the job queue. Jobs
// carry no status and are never retried.
type Job struct {
	Filename string
	SrcDir   string
	SrcHost  string
	SrcPort  int
	DstDir   string
	DstHost  string
	DstPort  int
}

// ParseSpec splits a "path@host:port" endpoint specifier. The path runs to
// the first '@', the host to the first ':' after it, and the port must be a
// positive integer.
func ParseSpec(spec string) (path, host string, port int, err error) {
	path, rest, ok := strings.Cut(spec, "@")
	if !ok || path == "" {
		return "", "", 0, fmt.Errorf("bad spec %q: want path@host:port", spec)
	}

	host, p, ok := strings.Cut(rest, ":")
	if !ok || host == "" {
		return "", "", 0, fmt.Errorf("bad spec %q: want path@host:port", spec)
	}

	port, err = strconv.Atoi(p)
	if err != nil || port <= 0 {
		return "", "", 0, fmt.Errorf("bad spec %q: invalid port %q", spec, p)
	}

	return path, host, port, nil
}

// ParseMapping builds a Mapping from source and destination specifiers.
func ParseMapping(src, dst string) (Mapping, error) {
	var m Mapping
	var err error

	if m.SrcPath, m.SrcHost, m.SrcPort, err = ParseSpec(src); err != nil {
		return Mapping{}, err
	}
	if m.DstPath, m.DstHost, m.DstPort, err = ParseSpec(dst); err != nil {
		return Mapping{}, err
	}

	return m, nil
}

// SrcSpec formats the source endpoint as "path@host:port". Cancellation is
// keyed on this string alone.
func (m Mapping) SrcSpec() string {
	return fmt.Sprintf("%v@%v:%v", m.SrcPath, m.SrcHost, m.SrcPort)
}

// DstSpec formats the destination endpoint as "path@host:port".
func (m Mapping) DstSpec() string {
	return fmt.Sprintf("%v@%v:%v", m.DstPath, m.DstHost, m.DstPort)
}

// job builds the copy job for one enumerated filename.
func (m Mapping) job(filename string) Job {
	return Job{
		Filename: filename,
		SrcDir:   m.SrcPath,
		SrcHost:  m.SrcHost,
		SrcPort:  m.SrcPort,
		DstDir:   m.DstPath,
		DstHost:  m.DstHost,
		DstPort:  m.DstPort,
	}
}

// SrcDesc describes the job's source file for the transfer log.
func (j Job) SrcDesc() string {
	return fmt.Sprintf("%v/%v@%v:%v", j.SrcDir, j.Filename, j.SrcHost, j.SrcPort)
}

// DstDesc describes the job's destination file for the transfer log.
func (j Job) DstDesc() string {
	return fmt.Sprintf("%v/%v@%v:%v", j.DstDir, j.Filename, j.DstHost, j.DstPort)
}
