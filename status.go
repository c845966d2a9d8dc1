package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Credential state constants for status reporting.
const (
	tokenStateMissing = "missing"
	tokenStateExpired = "expired"
	tokenStateValid   = "valid"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show credential and cached listing status",
		Long: `Display the stored credential, its expiry when the token carries one,
and the cached file listing. Reads local state only; no request is sent.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Server      string     `json:"server"`
	TokenState  string     `json:"token_state"`
	Username    string     `json:"username,omitempty"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	CachedFiles int        `json:"cached_files"`
	SyncedAt    *time.Time `json:"synced_at,omitempty"`
	CacheState  string     `json:"cache_state"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	svc, err := cc.Services(cmd.Context())
	if err != nil {
		return err
	}

	out := statusOutput{
		Server:      cc.Cfg.Server.BaseURL,
		TokenState:  tokenStateMissing,
		CachedFiles: svc.registry.Len(),
		CacheState:  svc.registry.State().String(),
	}

	if cred, ok := svc.session.Credential(); ok {
		out.TokenState = tokenStateValid
		out.Username = cred.Username
		out.IssuedAt = timePtr(cred.IssuedAt)

		if claims, isJWT := cred.Claims(); isJWT {
			out.Subject = claims.Subject
			out.ExpiresAt = timePtr(claims.ExpiresAt)
		}

		if cred.Expired(time.Now()) {
			out.TokenState = tokenStateExpired
		}
	}

	out.SyncedAt = timePtr(svc.registry.SyncedAt())

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	printStatusText(cc, &out)

	return nil
}

func printStatusText(cc *CLIContext, out *statusOutput) {
	w := cc.Stdout

	fmt.Fprintf(w, "Server:   %s\n", out.Server)

	switch out.TokenState {
	case tokenStateMissing:
		fmt.Fprintf(w, "Account:  not logged in\n")
	default:
		fmt.Fprintf(w, "Account:  %s (token %s)\n", out.Username, out.TokenState)

		if out.IssuedAt != nil {
			fmt.Fprintf(w, "Issued:   %s\n", formatAge(*out.IssuedAt))
		}

		if out.ExpiresAt != nil {
			fmt.Fprintf(w, "Expires:  %s\n", out.ExpiresAt.Local().Format(time.RFC1123))
		}
	}

	synced := "never"
	if out.SyncedAt != nil {
		synced = formatAge(*out.SyncedAt)
	}

	fmt.Fprintf(w, "Listing:  %d files, %s, synced %s\n", out.CachedFiles, out.CacheState, synced)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
