package sshutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/sftp"
)

// FileSystem defines the file operations used to place certificate
// material on a host.
type FileSystem interface {
	WriteFile(path string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
}

// SFTPFileSystem implements FileSystem over SFTP.
type SFTPFileSystem struct {
	client *Client
	logger *slog.Logger

	mu         sync.RWMutex
	sftpClient *sftp.Client
}

// SFTPOption is a functional option for configuring the SFTPFileSystem.
type SFTPOption func(*SFTPFileSystem)

// WithSFTPLogger sets a custom logger for SFTP operations.
func WithSFTPLogger(logger *slog.Logger) SFTPOption {
	return func(fs *SFTPFileSystem) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// NewSFTPFileSystem creates a new SFTP-based FileSystem.
// The underlying SSH client must be connected before use.
func NewSFTPFileSystem(client *Client, opts ...SFTPOption) *SFTPFileSystem {
	fs := &SFTPFileSystem{
		client: client,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(fs)
	}

	return fs
}

// Connect establishes the SFTP session over the SSH connection.
// The SSH client must be connected before calling this method.
func (fs *SFTPFileSystem) Connect(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sftpClient != nil {
		return nil
	}

	sshConn, err := fs.client.GetConnection()
	if err != nil {
		return fmt.Errorf("getting SSH connection: %w", err)
	}

	fs.logger.Debug("establishing SFTP session")

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		return fmt.Errorf("creating SFTP client: %w", err)
	}

	fs.sftpClient = sftpClient
	fs.logger.Debug("SFTP session established")

	return nil
}

// Close closes the SFTP session.
// Safe to call multiple times. Does not close the underlying SSH connection.
func (fs *SFTPFileSystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sftpClient == nil {
		return nil
	}

	err := fs.sftpClient.Close()
	fs.sftpClient = nil

	fs.logger.Debug("SFTP session closed")

	return err
}

// getSFTP returns the SFTP client, ensuring it's connected.
func (fs *SFTPFileSystem) getSFTP() (*sftp.Client, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if fs.sftpClient == nil {
		return nil, ErrNotConnected
	}

	return fs.sftpClient, nil
}

// WriteFile writes data to a file on the remote system. A failed
// permission change fails the write.
func (fs *SFTPFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return err
	}

	fs.logger.Debug("writing file",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
		slog.String("perm", perm.String()),
	)

	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if mkdirErr := fs.mkdirAllInternal(sftpClient, dir, 0o755); mkdirErr != nil {
			return fmt.Errorf("creating parent directory %s: %w", dir, mkdirErr)
		}
	}

	file, err := sftpClient.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("opening file %s for write: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	n, err := file.Write(data)
	if err != nil {
		return fmt.Errorf("writing to file %s: %w", path, err)
	}

	if n != len(data) {
		return fmt.Errorf("short write to file %s: wrote %d of %d bytes", path, n, len(data))
	}

	if err := sftpClient.Chmod(path, perm); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}

	fs.logger.Debug("file written successfully",
		slog.String("path", path),
		slog.Int("bytes", n),
	)

	return nil
}

// MkdirAll creates a directory and all parent directories on the remote system.
func (fs *SFTPFileSystem) MkdirAll(path string, perm os.FileMode) error {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return err
	}

	return fs.mkdirAllInternal(sftpClient, path, perm)
}

// mkdirAllInternal creates directories recursively.
func (fs *SFTPFileSystem) mkdirAllInternal(sftpClient *sftp.Client, path string, perm os.FileMode) error {
	fs.logger.Debug("creating directory",
		slog.String("path", path),
		slog.String("perm", perm.String()),
	)

	err := sftpClient.Mkdir(path)
	if err == nil {
		if chmodErr := sftpClient.Chmod(path, perm); chmodErr != nil {
			fs.logger.Warn("failed to set directory permissions",
				slog.String("path", path),
				slog.String("error", chmodErr.Error()),
			)
		}
		return nil
	}

	info, statErr := sftpClient.Stat(path)
	if statErr == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("path exists but is not a directory: %s", path)
	}

	parent := filepath.Dir(path)
	if parent != path && parent != "/" && parent != "." {
		if err := fs.mkdirAllInternal(sftpClient, parent, perm); err != nil {
			return err
		}
	}

	if err := sftpClient.Mkdir(path); err != nil {
		if info, statErr := sftpClient.Stat(path); statErr == nil && info.IsDir() {
			return nil
		}
		return fmt.Errorf("creating directory %s: %w", path, err)
	}

	if chmodErr := sftpClient.Chmod(path, perm); chmodErr != nil {
		fs.logger.Warn("failed to set directory permissions",
			slog.String("path", path),
			slog.String("error", chmodErr.Error()),
		)
	}

	return nil
}
