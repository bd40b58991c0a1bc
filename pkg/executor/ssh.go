/*
Copyright 2025 Mirantis IT.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

type SSHConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKey     []byte
	KnownHostsFile string
	// command providing connection stdio, '%h' and '%p' are replaced with host and port
	ProxyCommand   string
	ConnectTimeout time.Duration
	DefaultTimeout time.Duration
	HostPrefix     string
}

type SSHExecutor struct {
	shellFiles
	config SSHConfig
	client *ssh.Client
	mu     sync.Mutex
	log    zerolog.Logger
}

// dialer is swapped in tests
var dialSSH = dialSSHClient

func DialSSH(ctx context.Context, log zerolog.Logger, config SSHConfig) (*SSHExecutor, error) {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.User == "" {
		config.User = "root"
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = dspcommon.DefaultCommandTimeout
	}
	if config.Password == "" && len(config.PrivateKey) == 0 {
		return nil, dspcommon.NewError(dspcommon.ErrSSHPasswordRequired, "password or private key is required to connect to '%s'", config.Host)
	}
	clientConfig, err := buildClientConfig(config)
	if err != nil {
		return nil, err
	}
	client, err := dialSSH(ctx, config, clientConfig)
	if err != nil {
		return nil, classifyConnectError(config.Host, err)
	}
	e := &SSHExecutor{config: config, client: client, log: log}
	e.shellFiles = shellFiles{hostPrefix: config.HostPrefix, run: e.run}
	return e, nil
}

func buildClientConfig(config SSHConfig) (*ssh.ClientConfig, error) {
	auth := []ssh.AuthMethod{}
	if len(config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(config.PrivateKey)
		if err != nil {
			return nil, dspcommon.WrapError(dspcommon.ErrInvalid, err, "failed to parse private key for '%s'", config.Host)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if config.Password != "" {
		auth = append(auth, ssh.Password(config.Password))
	}
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.KnownHostsFile != "" {
		callback, err := knownhosts.New(config.KnownHostsFile)
		if err != nil {
			return nil, dspcommon.WrapError(dspcommon.ErrInvalid, err, "failed to load known hosts file '%s'", config.KnownHostsFile)
		}
		hostKeyCallback = callback
	}
	return &ssh.ClientConfig{
		User:            config.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.ConnectTimeout,
	}, nil
}

func dialSSHClient(ctx context.Context, config SSHConfig, clientConfig *ssh.ClientConfig) (*ssh.Client, error) {
	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	var conn net.Conn
	var err error
	if config.ProxyCommand != "" {
		pc, perr := startProxyCommand(ctx, config)
		if perr != nil {
			return nil, perr
		}
		conn = pc
	} else {
		dialer := net.Dialer{Timeout: config.ConnectTimeout}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		if pc, ok := conn.(*proxyConn); ok {
			return nil, pc.wrapError(err)
		}
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

type proxyCommandError struct {
	err error
}

func (e *proxyCommandError) Error() string {
	return e.err.Error()
}

func (e *proxyCommandError) Unwrap() error {
	return e.err
}

// classifyConnectError maps ssh handshake and transport errors onto error kinds.
func classifyConnectError(host string, err error) error {
	var proxyErr *proxyCommandError
	var keyErr *knownhosts.KeyError
	var revokedErr *knownhosts.RevokedError
	var openErr *ssh.OpenChannelError
	msg := err.Error()
	switch {
	case errors.As(err, &proxyErr):
		return dspcommon.WrapError(dspcommon.ErrSSHProxyCommandFailed, err, "proxy command failed for '%s'", host)
	case errors.As(err, &keyErr), errors.As(err, &revokedErr), strings.Contains(msg, "knownhosts:"):
		return dspcommon.WrapError(dspcommon.ErrSSHBadHostKey, err, "bad host key for '%s'", host)
	case errors.As(err, &openErr):
		return dspcommon.WrapError(dspcommon.ErrSSHChannelOpenFailed, err, "channel open failed for '%s'", host)
	case strings.Contains(msg, "partial success"):
		return dspcommon.WrapError(dspcommon.ErrSSHPartialAuthentication, err, "partial authentication for '%s'", host)
	case strings.Contains(msg, "unable to authenticate"):
		// server rejected every offered method before any credential was checked
		if strings.Contains(msg, "attempted methods [none]") {
			return dspcommon.WrapError(dspcommon.ErrSSHBadAuthenticationType, err, "no supported authentication type for '%s'", host)
		}
		return dspcommon.WrapError(dspcommon.ErrSSHAuthenticationFailed, err, "authentication failed for '%s'", host)
	}
	return dspcommon.WrapError(dspcommon.ErrSSHConnectFailed, err, "failed to connect to '%s'", host)
}

func (e *SSHExecutor) RunCommand(ctx context.Context, argv []string, timeout time.Duration) (*CommandResult, error) {
	return e.run(ctx, argv, nil, timeout)
}

func (e *SSHExecutor) run(ctx context.Context, argv []string, stdin []byte, timeout time.Duration) (*CommandResult, error) {
	if len(argv) == 0 {
		return nil, dspcommon.NewError(dspcommon.ErrProgramming, "empty command")
	}
	if timeout <= 0 {
		timeout = e.config.DefaultTimeout
	}
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return nil, dspcommon.NewError(dspcommon.ErrConnect, "ssh connection to '%s' is closed", e.config.Host)
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, classifyConnectError(e.config.Host, err)
	}
	defer session.Close()

	fullArgv, payload := privilegedArgv(e.config.User, e.config.Password, argv, stdin)
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if payload != nil {
		session.Stdin = bytes.NewReader(payload)
	}
	e.log.Trace().Msgf("running command '%s' on '%s'", dspcommon.ShellQuote(argv), e.config.Host)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(dspcommon.ShellQuote(fullArgv))
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err = <-done:
	case <-timer.C:
		_ = session.Signal(ssh.SIGKILL)
		return nil, timeoutError(argv, timeout)
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, dspcommon.WrapError(dspcommon.ErrCanceled, ctx.Err(), "command '%s' canceled", dspcommon.ShellQuote(argv))
	}
	result := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, commandResultError(argv, result)
		}
		return result, dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to run command on '%s'", e.config.Host)
	}
	return result, nil
}

func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// proxyConn exposes proxy command stdio as net.Conn.
type proxyConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *bytes.Buffer
	addr   string
}

func startProxyCommand(ctx context.Context, config SSHConfig) (*proxyConn, error) {
	command := strings.NewReplacer("%h", config.Host, "%p", strconv.Itoa(config.Port)).Replace(config.ProxyCommand)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &proxyCommandError{err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &proxyCommandError{err: err}
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, &proxyCommandError{err: errors.Wrapf(err, "failed to start proxy command '%s'", command)}
	}
	return &proxyConn{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr, addr: config.Host}, nil
}

func (c *proxyConn) wrapError(err error) error {
	if c.cmd.ProcessState != nil || strings.TrimSpace(c.stderr.String()) != "" {
		return &proxyCommandError{err: fmt.Errorf("%w (proxy stderr: %s)", err, strings.TrimSpace(c.stderr.String()))}
	}
	return err
}

func (c *proxyConn) Read(b []byte) (int, error)  { return c.stdout.Read(b) }
func (c *proxyConn) Write(b []byte) (int, error) { return c.stdin.Write(b) }

func (c *proxyConn) Close() error {
	_ = c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	_ = c.cmd.Wait()
	return nil
}

func (c *proxyConn) LocalAddr() net.Addr                { return proxyAddr("local") }
func (c *proxyConn) RemoteAddr() net.Addr               { return proxyAddr(c.addr) }
func (c *proxyConn) SetDeadline(_ time.Time) error      { return nil }
func (c *proxyConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *proxyConn) SetWriteDeadline(_ time.Time) error { return nil }

type proxyAddr string

func (a proxyAddr) Network() string { return "proxy" }
func (a proxyAddr) String() string  { return string(a) }
