// Package sshutil provides the SSH and SFTP primitives used to push
// certificate material to remote hosts and reload the services that
// consume it.
//
// # Overview
//
// The package provides three components:
//
//   - [Client]: manages one SSH connection
//   - [SFTPFileSystem]: implements [FileSystem] over SFTP
//   - [SSHCommandRunner]: implements [CommandRunner] over SSH exec
//
// # Basic Usage
//
//	config := &sshutil.Config{
//		Host:    "web-01.internal",
//		User:    "deploy",
//		KeyFile: "/etc/flarekeep/deploy_key",
//	}
//
//	client, err := sshutil.NewClient(config)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close()
//
//	fs := sshutil.NewSFTPFileSystem(client)
//	if err := fs.Connect(ctx); err != nil {
//		return err
//	}
//	defer fs.Close()
//
//	err = fs.WriteFile("/etc/nginx/certs/fullchain.pem", chain, 0o644)
//
//	runner := sshutil.NewSSHCommandRunner(client)
//	err = runner.Run(ctx, "systemctl reload nginx")
//
// # Security Considerations
//
// Host keys are not verified; connections are intended for trusted
// internal networks. Key-based authentication is strongly recommended
// over password authentication.
package sshutil
