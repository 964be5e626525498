package ssh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// SSHClient implements the Transport interface.
type SSHClient struct {
	config *Config

	client      *ssh.Client
	connMu      sync.RWMutex
	isConnected bool
	connectedAt time.Time
	lastUsedAt  time.Time
}

// NewSSHClient creates a new SSH transport client.
func NewSSHClient(config *Config) (*SSHClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &SSHClient{
		config: config,
	}, nil
}

// Connect establishes an SSH connection to the remote host.
func (c *SSHClient) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.isConnected && c.client != nil {
		// Already connected, verify connection is still alive
		if err := c.healthCheckInternal(); err == nil {
			return nil
		}
		log.Warn().Msg("existing connection is dead, reconnecting")
		_ = c.client.Close()
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: false,
			IsAuthError: true,
		}
	}

	if c.config.IsProxyEnabled() {
		return c.connectViaProxy(ctx, clientConfig)
	}

	return c.connectDirect(ctx, clientConfig)
}

// connectDirect establishes a direct SSH connection.
func (c *SSHClient) connectDirect(ctx context.Context, clientConfig *ssh.ClientConfig) error {
	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return &TransportError{
			Op:          "connect",
			Err:         ctx.Err(),
			IsTemporary: true,
			IsAuthError: false,
		}
	case err := <-errChan:
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: true,
			IsAuthError: false,
		}
	case client := <-connChan:
		c.client = client
		c.isConnected = true
		c.connectedAt = time.Now()
		c.lastUsedAt = time.Now()

		log.Info().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// connectViaProxy establishes an SSH connection through a proxy/jump host.
func (c *SSHClient) connectViaProxy(ctx context.Context, targetConfig *ssh.ClientConfig) error {
	proxyConfig := &Config{
		Host:                  c.config.ProxyHost,
		Port:                  c.config.ProxyPort,
		User:                  c.config.ProxyUser,
		AuthMethod:            c.config.ProxyAuthMethod,
		Password:              c.config.ProxyPassword,
		PrivateKeyPath:        c.config.ProxyPrivateKeyPath,
		ConnectionTimeout:     c.config.ConnectionTimeout,
		StrictHostKeyChecking: c.config.StrictHostKeyChecking,
		KnownHostsPath:        c.config.KnownHostsPath,
	}

	proxyClientConfig, err := proxyConfig.BuildSSHClientConfig()
	if err != nil {
		return fmt.Errorf("failed to build proxy config: %w", err)
	}

	log.Debug().Str("proxy", proxyConfig.Address()).Msg("connecting to proxy host")

	proxyClient, err := ssh.Dial("tcp", proxyConfig.Address(), proxyClientConfig)
	if err != nil {
		return &TransportError{
			Op:          "connect-proxy",
			Err:         err,
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	targetAddress := c.config.Address()
	log.Debug().Str("target", targetAddress).Msg("connecting to target through proxy")

	proxyConn, err := proxyClient.Dial("tcp", targetAddress)
	if err != nil {
		_ = proxyClient.Close()
		return &TransportError{
			Op:          "connect-via-proxy",
			Err:         err,
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	ncc, chans, reqs, err := ssh.NewClientConn(proxyConn, targetAddress, targetConfig)
	if err != nil {
		_ = proxyConn.Close()
		_ = proxyClient.Close()
		return &TransportError{
			Op:          "connect-via-proxy",
			Err:         err,
			IsTemporary: true,
			IsAuthError: true,
		}
	}

	c.client = ssh.NewClient(ncc, chans, reqs)
	c.isConnected = true
	c.connectedAt = time.Now()
	c.lastUsedAt = time.Now()

	log.Info().Str("target", targetAddress).Str("proxy", proxyConfig.Address()).Msg("SSH connection established via proxy")
	return nil
}

// Disconnect closes the SSH connection and releases all resources.
func (c *SSHClient) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil
	}

	log.Debug().Str("host", c.config.Host).Msg("closing SSH connection")

	err := c.client.Close()
	c.client = nil
	c.isConnected = false

	if err != nil {
		return &TransportError{
			Op:          "disconnect",
			Err:         err,
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	return nil
}

// IsConnected returns true if the transport has an active connection.
func (c *SSHClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.isConnected
}

// HealthCheck verifies the connection is still alive and responsive.
func (c *SSHClient) HealthCheck(ctx context.Context) error {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if !c.isConnected || c.client == nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         fmt.Errorf("not connected"),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	return c.healthCheckInternal()
}

// healthCheckInternal performs the actual health check (must be called with lock held).
func (c *SSHClient) healthCheckInternal() error {
	session, err := c.client.NewSession()
	if err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
			IsAuthError: false,
		}
	}
	defer session.Close()

	if err := session.Run("true"); err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	return nil
}

// GetConnectionInfo returns information about the current connection.
func (c *SSHClient) GetConnectionInfo() ConnectionInfo {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	return ConnectionInfo{
		Host:         c.config.Host,
		Port:         c.config.Port,
		User:         c.config.User,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastUsedAt,
	}
}

// getClient returns the underlying SSH client for the fetcher.
func (c *SSHClient) getClient() (*ssh.Client, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if !c.isConnected || c.client == nil {
		return nil, &TransportError{
			Op:          "get-client",
			Err:         fmt.Errorf("not connected"),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	c.lastUsedAt = time.Now()
	return c.client, nil
}
