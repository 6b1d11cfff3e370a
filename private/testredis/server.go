// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testredis starts redis servers for tests.
package testredis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
)

// Error is the class for test server errors.
var Error = errs.Class("testredis")

const (
	fallbackAddr = "localhost:6379"
	fallbackPort = 6379
)

// Server is a running redis test server.
type Server interface {
	Addr() string
	Close() error
}

func freeport() (addr string, port int) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fallbackAddr, fallbackPort
	}

	addr = listener.Addr().String()
	port = listener.Addr().(*net.TCPAddr).Port

	_ = listener.Close()
	return addr, port
}

// Start starts a redis-server when available, otherwise falls back to miniredis.
func Start(ctx context.Context) (Server, error) {
	server, err := Process(ctx)
	if err != nil {
		log.Println("failed to start redis-server: ", err)
		return Mini(ctx)
	}
	return server, nil
}

// Process starts a redis-server test process.
func Process(ctx context.Context) (Server, error) {
	tmpdir, err := os.MkdirTemp("", "rebloom-redis")
	if err != nil {
		return nil, Error.Wrap(err)
	}

	// find a suitable port for listening
	addr, port := freeport()

	// write a configuration file, because redis doesn't support flags
	confpath := filepath.Join(tmpdir, "test.conf")
	arguments := []string{
		"daemonize no",
		"bind 127.0.0.1",
		"port " + strconv.Itoa(port),
		"timeout 0",
		"databases 2",
		"dbfilename dump.rdb",
		"dir " + tmpdir,
	}
	conf := strings.Join(arguments, "\n") + "\n"
	err = os.WriteFile(confpath, []byte(conf), 0644)
	if err != nil {
		return nil, errs.Combine(Error.Wrap(err), os.RemoveAll(tmpdir))
	}

	// start the process
	cmd := exec.Command("redis-server", confpath)
	read, write, err := os.Pipe()
	if err != nil {
		return nil, errs.Combine(Error.Wrap(err), os.RemoveAll(tmpdir))
	}
	cmd.Stdout = write
	if err := cmd.Start(); err != nil {
		return nil, errs.Combine(Error.Wrap(err), read.Close(), write.Close(), os.RemoveAll(tmpdir))
	}

	server := &process{
		addr:   addr,
		cmd:    cmd,
		tmpdir: tmpdir,
		output: read,
		input:  write,
	}

	// wait for redis to become ready
	waitForReady := make(chan struct{})
	go func() {
		// wait for the message that looks like
		//   "Ready to accept connections"
		scanner := bufio.NewScanner(read)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.Contains(strings.ToLower(line), "ready to accept") {
				break
			}
		}
		close(waitForReady)
		_, _ = io.Copy(io.Discard, read)
	}()

	select {
	case <-waitForReady:
	case <-time.After(3 * time.Second):
		return nil, errs.Combine(Error.New("redis timeout"), server.Close())
	case <-ctx.Done():
		return nil, errs.Combine(Error.Wrap(ctx.Err()), server.Close())
	}

	// test whether we can actually connect
	if err := pingServer(ctx, addr); err != nil {
		return nil, errs.Combine(Error.New("unable to ping: %w", err), server.Close())
	}

	return server, nil
}

type process struct {
	addr   string
	cmd    *exec.Cmd
	tmpdir string
	output io.Closer
	input  io.Closer

	close sync.Once
}

func (server *process) Addr() string { return server.addr }

func (server *process) Close() error {
	var err error
	server.close.Do(func() {
		err = errs.Combine(
			server.cmd.Process.Kill(),
			ignoreWait(server.cmd.Wait()),
			server.input.Close(),
			server.output.Close(),
			os.RemoveAll(server.tmpdir),
		)
	})
	return err
}

// ignoreWait drops the exit error caused by killing the process.
func ignoreWait(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func pingServer(ctx context.Context, addr string) error {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer func() { _ = client.Close() }()
	return client.Ping(ctx).Err()
}

// MiniServer is an in-process miniredis server.
type MiniServer struct {
	*miniredis.Miniredis
}

// Mini starts miniredis server.
func Mini(context.Context) (*MiniServer, error) {
	server, err := miniredis.Run()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &MiniServer{Miniredis: server}, nil
}

// Close stops the server.
func (server *MiniServer) Close() error {
	server.Miniredis.Close()
	return nil
}

// URL returns an url usable with redis.ParseURL.
func URL(server Server, db int) string {
	return fmt.Sprintf("redis://%s/%d", server.Addr(), db)
}
