package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// FetchDirectory downloads the recognized configuration files from the
// remote directory into a fresh local temp directory and returns its path.
// Only the top level of the remote directory is considered, matching what
// the structural loader reads locally.
func (c *SSHClient) FetchDirectory(ctx context.Context, remoteDir string) (string, error) {
	startTime := time.Now()

	sshClient, err := c.getClient()
	if err != nil {
		return "", err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}
	defer sftpClient.Close()

	entries, err := sftpClient.ReadDir(remoteDir)
	if err != nil {
		return "", &TransportError{
			Op:          "fetch",
			Err:         fmt.Errorf("failed to read remote directory %s: %w", remoteDir, err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	localDir, err := os.MkdirTemp("", "infraguard-remote-*")
	if err != nil {
		return "", &TransportError{
			Op:          "fetch",
			Err:         fmt.Errorf("failed to create local directory: %w", err),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	fetched := 0
	for _, entry := range entries {
		if entry.IsDir() || !configFile(entry.Name()) {
			continue
		}

		select {
		case <-ctx.Done():
			_ = os.RemoveAll(localDir)
			return "", &TransportError{
				Op:          "fetch",
				Err:         ctx.Err(),
				IsTemporary: true,
				IsAuthError: false,
			}
		default:
		}

		remotePath := path.Join(remoteDir, entry.Name())
		localPath := filepath.Join(localDir, entry.Name())
		if err := c.fetchFile(ctx, sftpClient, remotePath, localPath); err != nil {
			_ = os.RemoveAll(localDir)
			return "", err
		}
		fetched++
	}

	if fetched == 0 {
		_ = os.RemoveAll(localDir)
		return "", &TransportError{
			Op:          "fetch",
			Err:         fmt.Errorf("no configuration files found in %s", remoteDir),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	log.Info().
		Str("remote", remoteDir).
		Str("local", localDir).
		Int("files", fetched).
		Dur("duration", time.Since(startTime)).
		Msg("remote configuration fetched")

	return localDir, nil
}

// fetchFile downloads a single remote file.
func (c *SSHClient) fetchFile(ctx context.Context, sftpClient *sftp.Client, remotePath, localPath string) error {
	log.Debug().
		Str("remote", remotePath).
		Str("local", localPath).
		Msg("downloading file")

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return &TransportError{
			Op:          "fetch",
			Err:         fmt.Errorf("failed to open remote file %s: %w", remotePath, err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}
	defer remoteFile.Close()

	localFile, err := os.Create(localPath)
	if err != nil {
		return &TransportError{
			Op:          "fetch",
			Err:         fmt.Errorf("failed to create local file: %w", err),
			IsTemporary: false,
			IsAuthError: false,
		}
	}
	defer localFile.Close()

	if _, err := copyWithContext(ctx, localFile, remoteFile); err != nil {
		return &TransportError{
			Op:          "fetch",
			Err:         fmt.Errorf("failed to copy %s: %w", remotePath, err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	return nil
}

// configFile reports whether the name is a configuration document the
// validator reads.
func configFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".tf")
}

// copyWithContext copies data from src to dst while respecting context
// cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}

	return written, nil
}
