package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gitlab.bluewillows.net/root/flarekeep/internal/config"
	"gitlab.bluewillows.net/root/flarekeep/providers/cloudflare"
)

var setupOutput string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Verify a Cloudflare API token and store it for the daemon",
	Long: `Setup prompts for a Cloudflare API token with terminal echo off, checks
it against the Cloudflare API, and writes it to a file only the current
user can read. Point CLOUDFLARE_API_TOKEN_FILE at that file so the token
never has to appear in the environment or a config file.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().StringVarP(&setupOutput, "output", "o", "cloudflare.token", "path for the token file")
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Print("Enter Cloudflare API token: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return errors.New("no token entered")
	}

	client, err := cloudflare.New(token, nil)
	if err != nil {
		return fmt.Errorf("creating cloudflare client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fmt.Println("verifying token...")
	if err := client.Verify(ctx); err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}
	fmt.Println("token verified")

	// O_EXCL refuses to clobber an existing token file.
	f, err := os.OpenFile(setupOutput, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating %q: %w", setupOutput, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, token); err != nil {
		return fmt.Errorf("writing %q: %w", setupOutput, err)
	}

	fmt.Printf("token written to %q\n\n", setupOutput)
	fmt.Println("point the daemon at it with:")
	fmt.Printf("  export %s_FILE=%s\n", config.EnvCloudflareAPIToken, setupOutput)
	return nil
}
