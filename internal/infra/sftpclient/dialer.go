// internal/infra/sftpclient/dialer.go
package sftpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"rre_filing_agent/internal/domain/transport"
)

const pingSampleSize = 5

var errHostKeyMismatch = errors.New("host key mismatch")

// Config holds the endpoint, credentials and directory layout of the receiving system.
type Config struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	PrivateKey            []byte // PEM
	HostKey               string // authorized_keys format
	InsecureIgnoreHostKey bool
	SubmissionsDir        string
	AcksDir               string
	ConnectTimeout        time.Duration
	OpTimeout             time.Duration
}

// Dialer opens SFTP sessions. It implements transport.Dialer.
type Dialer struct {
	cfg    Config
	logger *logrus.Entry
}

func NewDialer(cfg Config, logger *logrus.Entry) *Dialer {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = 30 * time.Second
	}
	return &Dialer{cfg: cfg, logger: logger.WithField("component", "sftp")}
}

func (d *Dialer) addr() string {
	return net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
}

func (d *Dialer) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if len(d.cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(d.cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid private key: %v", transport.ErrAuth, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if d.cfg.Password != "" {
		auth = append(auth, ssh.Password(d.cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("%w: no password or private key configured", transport.ErrAuth)
	}

	var hostKey ssh.HostKeyCallback
	switch {
	case d.cfg.HostKey != "":
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(d.cfg.HostKey))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid host key: %v", transport.ErrAuth, err)
		}
		fixed := ssh.FixedHostKey(pub)
		hostKey = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if err := fixed(hostname, remote, key); err != nil {
				return fmt.Errorf("%w: %v", errHostKeyMismatch, err)
			}
			return nil
		}
	case d.cfg.InsecureIgnoreHostKey:
		hostKey = ssh.InsecureIgnoreHostKey()
	default:
		return nil, fmt.Errorf("%w: no host key configured", transport.ErrAuth)
	}

	return &ssh.ClientConfig{
		User:            d.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         d.cfg.ConnectTimeout,
	}, nil
}

// Connect dials, authenticates and starts the sftp subsystem. The handshake is
// bounded by ConnectTimeout and by ctx.
func (d *Dialer) Connect(ctx context.Context) (transport.Session, error) {
	if d.cfg.Host == "" {
		return nil, fmt.Errorf("%w: no SFTP host configured", transport.ErrUnreachable)
	}
	cfg, err := d.clientConfig()
	if err != nil {
		return nil, err
	}
	addr := d.addr()

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()
	var nd net.Dialer
	conn, err := nd.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", transport.ErrUnreachable, addr, err)
	}

	_ = conn.SetDeadline(time.Now().Add(d.cfg.ConnectTimeout))
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, classifyHandshake(addr, err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("%w: start sftp subsystem on %s: %v", transport.ErrUnreachable, addr, err)
	}
	if !stop() {
		// ctx was cancelled while the subsystem started
		client.Close()
		sshClient.Close()
		return nil, fmt.Errorf("%w: connect %s: %v", transport.ErrUnreachable, addr, ctx.Err())
	}
	_ = conn.SetDeadline(time.Time{})

	d.logger.WithField("addr", addr).Debug("SFTP session established")
	return newSession(client, sshClient, d.cfg.OpTimeout), nil
}

// classifyHandshake separates credential and host identity failures from
// network ones. x/crypto/ssh exposes no sentinel for a refused login, only its message.
func classifyHandshake(addr string, err error) error {
	if errors.Is(err, errHostKeyMismatch) || strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("%w: %s: %v", transport.ErrAuth, addr, err)
	}
	return fmt.Errorf("%w: handshake with %s: %v", transport.ErrUnreachable, addr, err)
}

// Ping connects and lists both directories. It never returns an error; every
// failure is described in the result.
func (d *Dialer) Ping(ctx context.Context) transport.PingResult {
	start := time.Now()
	res := transport.PingResult{
		Host:        d.addr(),
		Submissions: transport.DirListing{Path: d.cfg.SubmissionsDir},
		Acks:        transport.DirListing{Path: d.cfg.AcksDir},
	}

	sess, err := d.Connect(ctx)
	if err != nil {
		res.ErrorKind = transport.Kind(err)
		res.Error = err.Error()
		res.LatencyMS = time.Since(start).Milliseconds()
		return res
	}
	defer sess.Close()

	res.OK = true
	for _, dl := range []*transport.DirListing{&res.Submissions, &res.Acks} {
		names, err := sess.List(ctx, dl.Path)
		if err != nil {
			res.OK = false
			dl.Error = err.Error()
			if res.ErrorKind == "" {
				res.ErrorKind = transport.Kind(err)
				res.Error = err.Error()
			}
			continue
		}
		sort.Strings(names)
		dl.Count = len(names)
		dl.Sample = names[:min(pingSampleSize, len(names))]
	}
	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}

// ReadPrivateKey loads a PEM key file. An empty path yields no key.
func ReadPrivateKey(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("private key file %s does not exist", path)
		}
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return data, nil
}
