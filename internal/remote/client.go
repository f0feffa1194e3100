package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"ask/internal/tools"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrNoAuthMethod is returned when neither an agent nor a usable key file is available.
var ErrNoAuthMethod = errors.New("no ssh authentication method available")

// SystemInfoCommand prints the remote distribution and kernel.
const SystemInfoCommand = "(cat /etc/os-release 2>/dev/null || cat /etc/issue 2>/dev/null || echo ) && uname -a"

type Config struct {
	Host     string
	Username string
	Port     int

	KeyPaths []string
	UseAgent bool
	// KnownHosts is a known_hosts file; empty accepts any host key.
	KnownHosts  string
	Timeout     time.Duration
	OutputLimit int

	// CommandTimeout bounds each Run; zero means no limit.
	CommandTimeout time.Duration
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Client 一条已建立的 SSH 连接，可多次执行非交互命令
// Client is an established SSH connection that runs non-interactive commands
type Client struct {
	conn    *ssh.Client
	agent   net.Conn
	limit   int
	timeout time.Duration
}

// Dial 建立连接并完成认证
// Dial connects and authenticates
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("ssh host is empty")
	}
	auth, agentConn, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Client, error) {
		if agentConn != nil {
			_ = agentConn.Close()
		}
		return nil, err
	}
	hostKey, err := hostKeyCallback(cfg.KnownHosts)
	if err != nil {
		return fail(err)
	}
	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return fail(fmt.Errorf("dial %s: %w", cfg.addr(), err))
	}
	if cfg.Timeout > 0 {
		_ = netConn.SetDeadline(time.Now().Add(cfg.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(netConn, cfg.addr(), clientCfg)
	if err != nil {
		_ = netConn.Close()
		return fail(fmt.Errorf("ssh handshake: %w", err))
	}
	_ = netConn.SetDeadline(time.Time{})
	return &Client{
		conn:    ssh.NewClient(c, chans, reqs),
		agent:   agentConn,
		limit:   cfg.OutputLimit,
		timeout: cfg.CommandTimeout,
	}, nil
}

// authMethods also returns the agent connection, if one was opened, so the
// caller can close it with the client.
func authMethods(cfg Config) ([]ssh.AuthMethod, net.Conn, error) {
	var methods []ssh.AuthMethod
	var agentConn net.Conn
	if cfg.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				agentConn = conn
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}
	var signers []ssh.Signer
	for _, path := range cfg.KeyPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			// passphrase-protected keys are left to the agent
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if len(methods) == 0 {
		return nil, nil, ErrNoAuthMethod
	}
	return methods, agentConn, nil
}

func hostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsPath) == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}

// Run executes command in a fresh session and collects its output and exit code.
// A command that outlives the configured timeout is killed and reported with
// exit code 124, like the local shell runner.
func (c *Client) Run(ctx context.Context, command string) (tools.ExecResult, error) {
	if strings.TrimSpace(command) == "" {
		return tools.ExecResult{}, errors.New("ssh command is empty")
	}
	execCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	sess, err := c.conn.NewSession()
	if err != nil {
		return tools.ExecResult{}, fmt.Errorf("open ssh session: %w", err)
	}
	defer sess.Close()

	stdout, stderr, collect := tools.CappedWriters(c.limit)
	sess.Stdout = stdout
	sess.Stderr = stderr

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-execCtx.Done():
			_ = sess.Signal(ssh.SIGKILL)
			_ = sess.Close()
		case <-done:
		}
	}()

	start := time.Now()
	err = sess.Run(command)
	res := collect(tools.ExecResult{Command: command, Duration: time.Since(start)})
	if err != nil {
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case ctx.Err() != nil:
			return res, ctx.Err()
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			res.ExitCode = 124
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitStatus()
		case errors.As(err, &missing):
			res.ExitCode = -1
		default:
			return res, fmt.Errorf("run ssh command: %w", err)
		}
	}
	return res, nil
}

// SystemInfo returns the remote os-release (or issue) followed by uname -a.
func (c *Client) SystemInfo(ctx context.Context) (string, error) {
	res, err := c.Run(ctx, SystemInfoCommand)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Close closes the SSH connection and the agent socket.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	if c.agent != nil {
		if aerr := c.agent.Close(); err == nil {
			err = aerr
		}
	}
	return err
}
