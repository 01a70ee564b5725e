// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package filer

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (string, int) {
	t.Helper()

	s, err := Listen(0)
	require.NoError(t, err)

	go s.Serve()
	t.Cleanup(func() { s.Close() })

	return "127.0.0.1", s.Addr().(*net.TCPAddr).Port
}

func dialServer(t *testing.T, host string, port int) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// readList reads response lines through the "." terminator.
func readList(t *testing.T, conn net.Conn) []string {
	t.Helper()

	var lines []string
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if scanner.Text() == "." {
			return lines
		}
		lines = append(lines, scanner.Text())
	}
	t.Fatalf("missing list terminator, got %v", lines)
	return nil
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("aa"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bb"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("h"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link")))

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "LIST %v\n", dir)

	names := readList(t, conn)
	sort.Strings(names)

	// regular files only, dotfiles included, order not significant
	assert.Equal(t, []string{".hidden", "a.txt", "b.txt"}, names)
}

func TestListEmpty(t *testing.T) {
	dir := t.TempDir()

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "LIST %v\n", dir)

	assert.Empty(t, readList(t, conn))
}

func TestListMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nope")

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "LIST %v\n", dir)

	lines := readList(t, conn)
	require.Len(t, lines, 1)
	assert.Equal(t, fmt.Sprintf("ERR: cannot open %v", dir), lines[0])
}

func TestPull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := []byte("hello world")
	require.NoError(t, os.WriteFile(path, content, 0644))

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "PULL %v\n", path)

	br := bufio.NewReader(conn)
	hdr, err := br.ReadString(' ')
	require.NoError(t, err)
	require.Equal(t, "11 ", hdr)

	body, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}

func TestPullEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "PULL %v\n", path)

	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "0 ", string(reply))
}

func TestPullMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope")

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "PULL %v\n", path)

	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(reply), "-1 "), "got %q", reply)
}

// waitForFile polls until the file at path has the wanted content.
func waitForFile(t *testing.T, path string, want []byte) {
	t.Helper()

	require.Eventually(t, func() bool {
		got, err := os.ReadFile(path)
		return err == nil && string(got) == string(want)
	}, 5*time.Second, 10*time.Millisecond, "waiting for %v", path)
}

func TestPushSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "PUSH %v -1 start\n", path)
	fmt.Fprintf(conn, "PUSH %v 5 ", path)
	conn.Write([]byte("hello"))
	fmt.Fprintf(conn, "PUSH %v 0 done\n", path)
	conn.Close()

	waitForFile(t, path, []byte("hello"))
}

func TestPushTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(path, []byte("old content to be replaced"), 0644))

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "PUSH %v -1 start\n", path)
	fmt.Fprintf(conn, "PUSH %v 3 ", path)
	conn.Write([]byte("new"))
	fmt.Fprintf(conn, "PUSH %v 0 done\n", path)
	conn.Close()

	waitForFile(t, path, []byte("new"))
}

// A chunk with no preceding open frame appends to the file.
func TestPushAppendWithoutOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "PUSH %v 3 ", path)
	conn.Write([]byte("def"))
	conn.Close()

	waitForFile(t, path, []byte("abcdef"))
}

// Closing a handle that was never opened is a clean no-op, twice over.
func TestPushCloseWithoutOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "PUSH %v 0 done\n", path)
	fmt.Fprintf(conn, "PUSH %v 0 done\n", path)
	conn.Close()

	// the server must not create the file; give it a moment to misbehave
	time.Sleep(100 * time.Millisecond)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// A handle left open by a client that disconnects without the terminating
// frame is closed with the connection and the data is kept.
func TestPushEOFClosesHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")

	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "PUSH %v -1 start\n", path)
	fmt.Fprintf(conn, "PUSH %v 4 ", path)
	conn.Write([]byte("data"))
	conn.Close()

	waitForFile(t, path, []byte("data"))
}

func TestUnknownCommand(t *testing.T) {
	host, port := startServer(t)
	conn := dialServer(t, host, port)

	fmt.Fprintf(conn, "FROB x\n")

	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "ERR: Unknown command\n", string(reply))
}
