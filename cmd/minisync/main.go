// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// minisync is the sync fabric manager. It registers directory mappings from
// a config file and from operator commands, enumerates source directories on
// the file servers, and streams files between servers with a bounded queue
// and a fixed worker pool. Operators drive it with minisyncc.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sandia-minimega/minisync/internal/manager"
	"github.com/sandia-minimega/minisync/internal/version"

	log "github.com/sandia-minimega/minimega/v2/pkg/minilog"
)

var (
	f_log     = flag.String("l", "", "path to the transfer log file")
	f_config  = flag.String("c", "", "path to the sync mapping config file")
	f_workers = flag.Int("n", 0, "number of transfer workers")
	f_port    = flag.Int("p", 0, "control port to listen on")
	f_buffer  = flag.Int("b", 0, "job queue capacity")
	f_timeout = flag.Int("timeout", 0, "socket timeout in seconds, 0 blocks without deadline")
	f_version = flag.Bool("version", false, "print the version")
)

func usage() {
	fmt.Println("usage: minisync -l <logfile> -c <config> -n <workers> -p <port> -b <buffer>")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	log.Init()

	if *f_version {
		fmt.Println("minisync", version.Revision, version.Date)
		os.Exit(0)
	}

	if *f_log == "" || *f_config == "" || *f_workers <= 0 || *f_port <= 0 || *f_buffer <= 0 {
		fmt.Fprintln(os.Stderr, "missing or invalid arguments")
		usage()
		os.Exit(1)
	}

	cfg := manager.Config{
		LogPath:    *f_log,
		ConfigPath: *f_config,
		Workers:    *f_workers,
		Port:       *f_port,
		QueueSize:  *f_buffer,
		Timeout:    time.Duration(*f_timeout) * time.Second,
	}

	log.Info("transfer log: %v", cfg.LogPath)
	log.Info("config file: %v", cfg.ConfigPath)
	log.Info("workers: %v", cfg.Workers)
	log.Info("control port: %v", cfg.Port)
	log.Info("queue capacity: %v", cfg.QueueSize)

	m, err := manager.New(cfg)
	if err != nil {
		log.Fatal("open transfer log: %v", err)
	}

	if err := m.Listen(); err != nil {
		log.Fatal("control listen: %v", err)
	}

	if err := m.Run(); err != nil {
		log.Fatalln(err)
	}
}
