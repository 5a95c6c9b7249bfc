package main

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"

	"github.com/rs/zerolog"

	"github.com/boxnet/boxd/pkg/adminapi"
)

// serveAdminSocket listens on a Unix-domain socket at path (spec.md §6:
// "~/.box/run/boxd.socket", mode 0o600) and answers each newline-terminated
// command line via handler.Dispatch. The IPC transport itself is the named
// out-of-scope collaborator; this just wires a net.Listener to it.
func serveAdminSocket(ctx context.Context, log zerolog.Logger, path string, handler *adminapi.Handler) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Err(err).Msg("boxd: admin socket accept error")
			continue
		}
		go handleAdminConn(ctx, log, conn, handler)
	}
}

func handleAdminConn(ctx context.Context, log zerolog.Logger, conn net.Conn, handler *adminapi.Handler) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		resp := handler.Dispatch(ctx, sc.Text())
		resp = append(resp, '\n')
		if _, err := conn.Write(resp); err != nil {
			log.Debug().Err(err).Msg("boxd: admin socket write error")
			return
		}
	}
}
