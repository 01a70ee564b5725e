// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package filer

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	log "github.com/sandia-minimega/minimega/v2/pkg/minilog"
)

// Client dials file servers and speaks the LIST/PULL/PUSH protocol. The zero
// value dials and reads without any deadline; a non-zero Timeout bounds the
// dial and sets one deadline, Timeout after the dial, for all reads and
// writes on the resulting connection.
type Client struct {
	Timeout time.Duration
}

func (c *Client) dial(host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	if c.Timeout == 0 {
		return net.Dial("tcp", addr)
	}

	conn, err := net.DialTimeout("tcp", addr, c.Timeout)
	if err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(c.Timeout))
	return conn, nil
}

// List enumerates the regular files in dir on the given server, invoking
// walk once per name in the order the server reports them. Enumeration stops
// early if walk returns false. Error lines from the server terminate the
// walk and are returned as an error.
func (c *Client) List(host string, port int, dir string, walk func(name string) bool) error {
	conn, err := c.dial(host, port)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "LIST %v\n", dir); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "." {
			return nil
		}
		if strings.HasPrefix(line, "ERR:") {
			return fmt.Errorf("%v", strings.TrimSpace(strings.TrimPrefix(line, "ERR:")))
		}
		if !walk(line) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("list %v: connection closed before terminator", dir)
}

// PullReader is the read side of an in-flight PULL. Size is the byte count
// announced by the server; Read returns at most Size bytes in total.
type PullReader struct {
	Size int64

	conn net.Conn
	r    io.Reader
}

func (p *PullReader) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *PullReader) Close() error {
	return p.conn.Close()
}

// Pull requests the content of path from the given server. The returned
// reader must be closed by the caller. A negative length in the reply header
// is returned as an error carrying the server's message.
func (c *Client) Pull(host string, port int, path string) (*PullReader, error) {
	conn, err := c.dial(host, port)
	if err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintf(conn, "PULL %v\n", path); err != nil {
		conn.Close()
		return nil, err
	}

	br := bufio.NewReader(conn)
	size, err := readPullHeader(br)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &PullReader{
		Size: size,
		conn: conn,
		r:    io.LimitReader(br, size),
	}, nil
}

// readPullHeader parses the "<length> " reply header: the decimal length is
// everything up to the first space. On a negative length the remainder of
// the stream is the server's message, which may or may not end in a newline.
func readPullHeader(br *bufio.Reader) (int64, error) {
	hdr, err := br.ReadString(' ')
	if err != nil {
		return 0, fmt.Errorf("read header: %v", err)
	}

	size, err := strconv.ParseInt(strings.TrimSpace(hdr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad header %q", hdr)
	}

	if size < 0 {
		msg, _ := io.ReadAll(br)
		return 0, fmt.Errorf("pull failed: %v", strings.TrimSpace(string(msg)))
	}

	return size, nil
}

// Pusher streams a file to a destination server as a PUSH frame sequence on
// a single connection: an opening truncate frame, one frame per Write, and a
// closing zero-length frame on Close. Pusher is an io.WriteCloser.
type Pusher struct {
	conn net.Conn
	path string
	err  error
}

// OpenPush dials the destination and opens path for a truncating write.
func (c *Client) OpenPush(host string, port int, path string) (*Pusher, error) {
	conn, err := c.dial(host, port)
	if err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintf(conn, "PUSH %v -1 start\n", path); err != nil {
		conn.Close()
		return nil, err
	}

	return &Pusher{conn: conn, path: path}, nil
}

// Write sends one chunk frame: the frame header, then the chunk bytes
// verbatim with no line terminator.
func (p *Pusher) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if len(b) == 0 {
		return 0, nil
	}

	if _, err := fmt.Fprintf(p.conn, "PUSH %v %v ", p.path, len(b)); err != nil {
		p.err = err
		return 0, err
	}
	n, err := p.conn.Write(b)
	if err != nil {
		p.err = err
	}
	return n, err
}

// Close sends the terminating frame and closes the connection. The server
// sends no acknowledgement; an error here means the terminator may not have
// been delivered.
func (p *Pusher) Close() error {
	_, err := fmt.Fprintf(p.conn, "PUSH %v 0 done\n", p.path)
	if cerr := p.conn.Close(); err == nil {
		err = cerr
	}
	if p.err != nil {
		log.Debug("push %v completed with earlier error: %v", p.path, p.err)
	}
	return err
}
