package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cloudo-app/cloudo-go/internal/api"
	"github.com/cloudo-app/cloudo-go/internal/config"
)

// errNotLoggedIn is shown instead of the bare api error when a command needs
// a credential and there is none.
var errNotLoggedIn = errors.New("not logged in (run 'cloudo login' first)")

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the Cloudo server",
		Long: `Exchange a username and password for a bearer token and store it.

The password is read from the terminal without echo, or from the first line
of standard input with --password-stdin.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().StringP("username", "u", "", "account username (prompted when omitted)")
	cmd.Flags().Bool("password-stdin", false, "read the password from standard input")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential and cached listing",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the Cloudo server",
		Args:  cobra.NoArgs,
		RunE:  runRegister,
	}

	cmd.Flags().StringP("username", "u", "", "account username (prompted when omitted)")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().Bool("password-stdin", false, "read the password from standard input")

	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	svc, err := cc.Services(ctx)
	if err != nil {
		return err
	}

	in := newPrompter(cc)

	username, err := in.value(cmd, "username", "Username: ")
	if err != nil {
		return err
	}

	password, err := in.password(cmd)
	if err != nil {
		return err
	}

	cred, err := svc.session.Login(ctx, username, password)
	if err != nil {
		return err
	}

	// A different account must not see the previous account's listing.
	if err := svc.registry.Reset(ctx); err != nil {
		cc.Logger.Warn("clearing cached listing", slog.String("error", err.Error()))
	}

	writeConfigOnFirstLogin(cc)

	cc.Statusf("Logged in as %s.\n", cred.Username)

	return nil
}

// writeConfigOnFirstLogin drops a commented config file next to the token the
// first time someone logs in without one, so the options are discoverable.
func writeConfigOnFirstLogin(cc *CLIContext) {
	if cc.Cfg.FileLoaded || cc.Cfg.Path == "" {
		return
	}

	err := config.CreateDefault(cc.Cfg.Path, cc.Cfg.Server.BaseURL)
	if err != nil && !errors.Is(err, config.ErrConfigExists) {
		cc.Logger.Warn("writing default config", slog.String("error", err.Error()))

		return
	}

	if err == nil {
		cc.Statusf("Wrote default configuration to %s.\n", cc.Cfg.Path)
	}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	svc, err := cc.Services(ctx)
	if err != nil {
		return err
	}

	was := svc.session.IsAuthenticated()

	if err := svc.session.Logout(); err != nil {
		return err
	}

	if err := svc.registry.Reset(ctx); err != nil {
		return err
	}

	if was {
		cc.Statusf("Logged out.\n")
	} else {
		cc.Statusf("Not logged in.\n")
	}

	return nil
}

func runRegister(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	svc, err := cc.Services(ctx)
	if err != nil {
		return err
	}

	in := newPrompter(cc)
	req := &api.RegisterRequest{}

	if req.Username, err = in.value(cmd, "username", "Username: "); err != nil {
		return err
	}

	if req.Name, err = in.value(cmd, "name", "Name: "); err != nil {
		return err
	}

	if req.Email, err = in.value(cmd, "email", "Email: "); err != nil {
		return err
	}

	if req.Password, err = in.password(cmd); err != nil {
		return err
	}

	status, err := svc.session.Register(ctx, req)
	if err != nil {
		return err
	}

	if status == "" {
		status = "Registered."
	}

	fmt.Fprintln(cc.Stdout, status)
	cc.Statusf("Run 'cloudo login -u %s' to sign in.\n", req.Username)

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Server   string `json:"server"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	svc, err := cc.Services(ctx)
	if err != nil {
		return err
	}

	user, err := svc.session.Me(ctx, svc.client)
	if err != nil {
		return explainAuth(err)
	}

	out := whoamiOutput{
		ID:       user.ID,
		Username: user.Username,
		Name:     user.Name,
		Email:    user.Email,
		Server:   cc.Cfg.Server.BaseURL,
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	fmt.Fprintf(cc.Stdout, "User:   %s\n", displayName(out.Name, out.Username))

	if out.Email != "" {
		fmt.Fprintf(cc.Stdout, "Email:  %s\n", out.Email)
	}

	fmt.Fprintf(cc.Stdout, "ID:     %s\n", out.ID)
	fmt.Fprintf(cc.Stdout, "Server: %s\n", out.Server)

	return nil
}

func displayName(name, username string) string {
	if name == "" || name == username {
		return username
	}

	return fmt.Sprintf("%s (%s)", name, username)
}

// explainAuth swaps the missing-credential error for a hint.
func explainAuth(err error) error {
	if errors.Is(err, api.ErrNotLoggedIn) {
		return errNotLoggedIn
	}

	return err
}

// prompter reads answers from stdin, prompting on stderr when stdin is a
// terminal. One buffered reader serves every answer so piped input can carry
// several lines.
type prompter struct {
	cc     *CLIContext
	reader *bufio.Reader
	tty    bool
}

func newPrompter(cc *CLIContext) *prompter {
	stdin := cc.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}

	return &prompter{cc: cc, reader: bufio.NewReader(stdin), tty: isTerminal(stdin)}
}

// value returns the named flag, or prompts for it.
func (p *prompter) value(cmd *cobra.Command, flag, prompt string) (string, error) {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v, nil
	}

	if p.tty {
		fmt.Fprint(p.cc.Stderr, prompt)
	}

	line, err := p.line()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", flag, err)
	}

	if line == "" {
		return "", fmt.Errorf("--%s is required", flag)
	}

	return line, nil
}

// password reads the password without echo on a terminal, or from stdin
// with --password-stdin.
func (p *prompter) password(cmd *cobra.Command) (string, error) {
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	if fromStdin {
		line, err := p.line()
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return line, nil
	}

	f, ok := p.cc.Stdin.(*os.File)
	if !ok || !p.tty {
		return "", errors.New("no terminal for a password prompt (use --password-stdin)")
	}

	fmt.Fprint(p.cc.Stderr, "Password: ")

	raw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.cc.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(raw), nil
}

func (p *prompter) line() (string, error) {
	s, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	return strings.TrimRight(s, "\r\n"), nil
}
