// Package certtool defines the interface to the certificate issuance tool.
// The tool is driven as a black box: it either succeeds or fails with an
// error, and exposes the stored certificate's expiry for inspection.
package certtool

import (
	"context"
	"fmt"
	"time"
)

// ChallengeHook receives DNS-01 challenge values during issuance.
// Present is called before validation to publish the challenge value for a
// domain; Cleanup is called afterwards to remove it. Both are synchronous
// and idempotent: Cleanup must be safe to call even when Present failed
// partway.
type ChallengeHook interface {
	Present(ctx context.Context, domain, value string) error
	Cleanup(ctx context.Context, domain, value string) error
}

// Tool is the capability interface for certificate issuance and inspection.
type Tool interface {
	// Expiry returns the NotAfter timestamp of the certificate stored under
	// the group key. ok is false when no certificate exists.
	Expiry(groupKey string) (notAfter time.Time, ok bool, err error)

	// Issue obtains or renews one certificate covering all domains, stored
	// under the first domain's name. The hook is invoked for each domain's
	// DNS-01 challenge.
	Issue(ctx context.Context, domains []string, hook ChallengeHook) error
}

// ToolError wraps a failure of the issuance tool for one domain group.
type ToolError struct {
	Group string
	Err   error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("cert tool: group %s: %v", e.Group, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with the domain group it occurred in.
func WrapError(group string, err error) error {
	if err == nil {
		return nil
	}
	return &ToolError{Group: group, Err: err}
}
