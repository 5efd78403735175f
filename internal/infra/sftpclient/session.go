// internal/infra/sftpclient/session.go
package sftpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"

	"rre_filing_agent/internal/domain/transport"
)

// session implements transport.Session over one SFTP subsystem channel.
// The sftp client multiplexes concurrent requests, so workers share it freely.
type session struct {
	client    *sftp.Client
	closer    io.Closer // ssh client, closed after the sftp client
	opTimeout time.Duration
	closeOnce sync.Once
	closeErr  error
}

func newSession(client *sftp.Client, closer io.Closer, opTimeout time.Duration) *session {
	return &session{client: client, closer: closer, opTimeout: opTimeout}
}

// do runs fn bounded by ctx and the per-operation timeout. The sftp client takes
// no context, so an expired operation is abandoned: its reply is discarded when
// it arrives and the connection stays up for everyone else.
func (s *session) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, transport.ErrUnreachable, err)
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(opCtx) }()

	select {
	case err := <-done:
		return result(op, err)
	case <-opCtx.Done():
		select {
		case err := <-done:
			return result(op, err)
		default:
		}
		return fmt.Errorf("%s: %w: %v", op, transport.ErrUnreachable, opCtx.Err())
	}
}

func result(op string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// Push uploads data under a hidden temporary name and renames it into place, so
// the remote ingestion job never sees a partial file. An upload abandoned before
// the rename leaves nothing behind.
func (s *session) Push(ctx context.Context, remoteDir, filename string, data []byte) error {
	tmp := path.Join(remoteDir, "."+filename+".part")
	final := path.Join(remoteDir, filename)

	return s.do(ctx, "push "+final, func(ctx context.Context) error {
		f, err := s.client.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			_ = s.client.Remove(tmp)
			return err
		}
		if err := f.Close(); err != nil {
			_ = s.client.Remove(tmp)
			return err
		}
		if err := ctx.Err(); err != nil {
			_ = s.client.Remove(tmp)
			return err
		}
		if err := s.client.PosixRename(tmp, final); err != nil {
			// server without the posix-rename extension
			if rerr := s.client.Rename(tmp, final); rerr != nil {
				_ = s.client.Remove(tmp)
				return rerr
			}
		}
		return nil
	})
}

// List returns regular file names in remoteDir, skipping in-flight temp files.
func (s *session) List(ctx context.Context, remoteDir string) ([]string, error) {
	var names []string
	err := s.do(ctx, "list "+remoteDir, func(context.Context) error {
		entries, err := s.client.ReadDir(remoteDir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			names = append(names, e.Name())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *session) Fetch(ctx context.Context, remoteDir, filename string) ([]byte, error) {
	var data []byte
	full := path.Join(remoteDir, filename)
	err := s.do(ctx, "fetch "+full, func(context.Context) error {
		f, err := s.client.Open(full)
		if err != nil {
			return err
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		err := s.client.Close()
		if s.closer != nil {
			if cerr := s.closer.Close(); err == nil {
				err = cerr
			}
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// classify maps sftp and network failures onto the transport taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, transport.ErrAuth), errors.Is(err, transport.ErrUnreachable), errors.Is(err, transport.ErrNotFound):
		return err
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: permission denied: %v", transport.ErrAuth, err)
	default:
		return fmt.Errorf("%w: %v", transport.ErrUnreachable, err)
	}
}
