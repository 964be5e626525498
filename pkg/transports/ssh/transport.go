// Package ssh fetches remote configuration directories over SSH/SFTP so
// they can be validated locally. The transport is strictly read-only: it
// never writes to or executes anything on the remote host.
package ssh

import (
	"context"
	"time"
)

// Transport is the contract for fetching a remote configuration directory.
type Transport interface {
	// Connect establishes an SSH connection to the remote host.
	Connect(ctx context.Context) error

	// Disconnect closes the SSH connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// HealthCheck verifies the connection is still alive and responsive.
	HealthCheck(ctx context.Context) error

	// FetchDirectory downloads the recognized configuration files from the
	// remote directory into a fresh local temp directory and returns its
	// path. The caller owns cleanup of the returned directory.
	FetchDirectory(ctx context.Context, remoteDir string) (string, error)

	// GetConnectionInfo returns information about the current connection.
	GetConnectionInfo() ConnectionInfo
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port number
	Port int

	// User is the SSH username
	User string

	// ConnectedAt is when the connection was established
	ConnectedAt time.Time

	// LastActivity is when the connection was last used
	LastActivity time.Time
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "fetch")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
