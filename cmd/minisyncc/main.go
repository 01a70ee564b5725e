// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// minisyncc is the operator console for the minisync manager. Each typed
// command travels on its own one-shot TCP control connection; the manager's
// reply is read to EOF and printed. Commands are also appended to a local
// log file with a timestamp.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sandia-minimega/minisync/internal/version"

	log "github.com/sandia-minimega/minimega/v2/pkg/minilog"

	"github.com/peterh/liner"
)

var (
	f_log     = flag.String("l", "", "path to the console log file")
	f_host    = flag.String("h", "", "manager host")
	f_port    = flag.Int("p", 0, "manager control port")
	f_version = flag.Bool("version", false, "print the version")
)

func usage() {
	fmt.Println("usage: minisyncc -l <logfile> -h <host> -p <port>")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	log.Init()

	if *f_version {
		fmt.Println("minisyncc", version.Revision, version.Date)
		os.Exit(0)
	}

	if *f_log == "" || *f_host == "" || *f_port <= 0 {
		fmt.Fprintln(os.Stderr, "missing or invalid arguments")
		usage()
		os.Exit(1)
	}

	clog, err := os.OpenFile(*f_log, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		log.Fatal("open console log: %v", err)
	}
	defer clog.Close()

	attach(*f_host, *f_port, clog)
}

// attach runs the interactive prompt loop until EOF or a shutdown command.
func attach(host string, port int, clog *os.File) {
	input := liner.NewLiner()
	defer input.Close()

	input.SetCtrlCAborts(true)

	prompt := fmt.Sprintf("minisync:%v$ ", net.JoinHostPort(host, strconv.Itoa(port)))

	for {
		line, err := input.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			continue
		} else if err == io.EOF {
			fmt.Println()
			return
		} else if err != nil {
			log.Errorln(err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		input.AppendHistory(line)

		fmt.Fprintf(clog, "[%v] %v\n", time.Now().Format("2006-01-02 15:04:05"), line)

		reply, err := send(host, port, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connection failed: %v\n", err)
			continue
		}
		fmt.Print(reply)

		if strings.HasPrefix(line, "shutdown") {
			return
		}
	}
}

// send forwards one command on a fresh control connection and reads the
// reply to EOF; the manager closes the connection after each command.
func send(host string, port int, line string) (string, error) {
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%v\n", line); err != nil {
		return "", err
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", err
	}

	return string(reply), nil
}
