// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// minisyncd is the per-host file server of the sync fabric. It answers
// LIST, PULL, and PUSH requests on a TCP port, one logical request per
// connection.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sandia-minimega/minisync/internal/filer"
	"github.com/sandia-minimega/minisync/internal/version"

	log "github.com/sandia-minimega/minimega/v2/pkg/minilog"
)

var (
	f_port    = flag.Int("p", 0, "port to listen on")
	f_version = flag.Bool("version", false, "print the version")
)

func usage() {
	fmt.Println("usage: minisyncd -p <port>")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	log.Init()

	if *f_version {
		fmt.Println("minisyncd", version.Revision, version.Date)
		os.Exit(0)
	}

	if *f_port <= 0 {
		fmt.Fprintln(os.Stderr, "missing or invalid port")
		usage()
		os.Exit(1)
	}

	s, err := filer.Listen(*f_port)
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Printf("minisyncd running on port %v\n", *f_port)

	s.Serve()
}
