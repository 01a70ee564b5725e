// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package filer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	log "github.com/sandia-minimega/minimega/v2/pkg/minilog"
)

// handle serves one logical request and closes the connection.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)

	verb, err := readWord(br)
	if err != nil {
		return
	}

	log.Debug("filer request from %v: %v", conn.RemoteAddr(), verb)

	// LIST and PULL take their argument on the same line
	if verb == "LIST" || verb == "PULL" {
		if c, err := br.Peek(1); err == nil && (c[0] == '\r' || c[0] == '\n') {
			fmt.Fprintf(conn, "ERR: missing argument\n")
			return
		}
	}

	switch verb {
	case "LIST":
		dir, err := readWord(br)
		if err != nil {
			return
		}
		serveList(conn, dir)
	case "PULL":
		path, err := readWord(br)
		if err != nil {
			return
		}
		servePull(conn, path)
	case "PUSH":
		servePush(conn, br)
	default:
		fmt.Fprintf(conn, "ERR: Unknown command\n")
	}
}

// serveList writes the names of the regular files directly inside dir, one
// per line, terminated by a "." line. The terminator is sent even when the
// directory cannot be opened so that clients always see an end of list.
func serveList(conn net.Conn, dir string) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(conn, "ERR: cannot open %v\n.\n", dir)
		return
	}

	bw := bufio.NewWriter(conn)
	for _, e := range ents {
		if e.Type().IsRegular() {
			fmt.Fprintf(bw, "%v\n", e.Name())
		}
	}
	bw.WriteString(".\n")
	bw.Flush()
}

// servePull streams a file as a "<length> " header followed by exactly that
// many raw bytes. Errors are reported as a negative length and a message.
func servePull(conn net.Conn, path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(conn, "-1 %v\n", errMsg(err))
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		fmt.Fprintf(conn, "-1 %v\n", errMsg(err))
		return
	}
	if !fi.Mode().IsRegular() {
		fmt.Fprintf(conn, "-1 not a regular file\n")
		return
	}

	fmt.Fprintf(conn, "%v ", fi.Size())

	if _, err := io.Copy(conn, f); err != nil {
		log.Error("pull %v: %v", path, err)
	}
}

// servePush consumes PUSH frames until EOF. The open handle lives in this
// frame loop only, so concurrent PUSH connections cannot interfere, and a
// handle left open by a client that never sent the zero-length frame is
// closed when the connection ends.
func servePush(conn net.Conn, br *bufio.Reader) {
	var f *os.File
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	for first := true; ; first = false {
		if !first {
			verb, err := readWord(br)
			if err != nil {
				return
			}
			if verb != "PUSH" {
				fmt.Fprintf(conn, "ERR: Unknown command\n")
				return
			}
		}

		path, err := readWord(br)
		if err != nil {
			return
		}
		word, err := readWord(br)
		if err != nil {
			return
		}
		n, err := strconv.Atoi(word)
		if err != nil {
			fmt.Fprintf(conn, "ERR: invalid chunk length %v\n", word)
			return
		}

		switch {
		case n < 0:
			// open/begin: truncate or create, remainder of the line is
			// ignored
			discardLine(br)
			if f != nil {
				f.Close()
			}
			f, err = os.Create(path)
			if err != nil {
				log.Error("push open %v: %v", path, err)
				f = nil
			}
		case n == 0:
			// end: closing a never-opened handle is a clean no-op
			discardLine(br)
			if f != nil {
				f.Close()
				f = nil
			}
		default:
			// exactly n raw payload bytes follow the count
			buf := make([]byte, n)
			if _, err := io.ReadFull(br, buf); err != nil {
				log.Debug("push short read for %v: %v", path, err)
				return
			}
			if f == nil {
				// a chunk with no preceding open appends to the file, a
				// quirk kept for client compatibility
				f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0664)
				if err != nil {
					log.Error("push append %v: %v", path, err)
					continue
				}
			}
			if _, err := f.Write(buf); err != nil {
				log.Error("push write %v: %v", path, err)
			}
		}
	}
}

// readWord returns the next space-delimited token, skipping leading spaces
// and line breaks. Tokens are bounded by a space or end of line; the
// delimiter is consumed only when it is a space, so after a token at end of
// line the line break is still in the reader for discardLine to consume.
func readWord(br *bufio.Reader) (string, error) {
	var sb strings.Builder

	// skip leading separators
	for {
		c, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		if c == ' ' || c == '\r' || c == '\n' {
			continue
		}
		sb.WriteByte(c)
		break
	}

	for {
		c, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		if c == ' ' {
			return sb.String(), nil
		}
		if c == '\r' || c == '\n' {
			br.UnreadByte()
			return sb.String(), nil
		}
		sb.WriteByte(c)
	}
}

// discardLine consumes input through the next newline, tolerating EOF.
func discardLine(br *bufio.Reader) {
	for {
		c, err := br.ReadByte()
		if err != nil || c == '\n' {
			return
		}
	}
}

// errMsg extracts the bare OS error text, e.g. "no such file or directory",
// from a wrapped path error.
func errMsg(err error) string {
	var perr *os.PathError
	if errors.As(err, &perr) {
		return perr.Err.Error()
	}
	return err.Error()
}
