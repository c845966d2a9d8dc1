package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cloudo-app/cloudo-go/internal/api"
	"github.com/cloudo-app/cloudo-go/internal/registry"
	"github.com/cloudo-app/cloudo-go/internal/transfer"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored files",
		Long: `Fetch the full file listing from the server and print it.

With --cached the last fetched listing is printed without contacting the
server.`,
		Args: cobra.NoArgs,
		RunE: runLs,
	}

	cmd.Flags().Bool("cached", false, "print the cached listing without contacting the server")

	return cmd
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <file>...",
		Short: "Upload files",
		Long: `Upload one or more local files. Files are sent concurrently, up to
transfers.parallel_uploads at a time. A failed upload is reported and the
rest continue; re-run put to retry it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id-or-name>...",
		Short: "Delete stored files",
		Long: `Delete files by identifier, or by name when exactly one stored file
carries that name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRm,
	}
}

func newURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <id-or-name>",
		Short: "Print a download locator for a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runURL,
	}
}

// fileJSON is the JSON schema for one file in `ls --json` and `put --json`.
type fileJSON struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Size        *int64     `json:"size,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
}

func toFileJSON(f *api.FileRecord) fileJSON {
	out := fileJSON{
		ID:          f.ID,
		Name:        f.Name,
		CreatedAt:   timePtr(f.CreatedAt),
		ContentType: f.ContentType,
	}

	if f.HasSize() {
		size := f.Size
		out.Size = &size
	}

	return out
}

// authedServices returns the services for a command that needs a credential.
func authedServices(cmd *cobra.Command) (*CLIContext, *services, error) {
	cc := mustCLIContext(cmd.Context())

	svc, err := cc.Services(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	if !svc.session.IsAuthenticated() {
		return nil, nil, errNotLoggedIn
	}

	return cc, svc, nil
}

func runLs(cmd *cobra.Command, _ []string) error {
	cached, _ := cmd.Flags().GetBool("cached")

	var (
		cc      *CLIContext
		svc     *services
		records []api.FileRecord
		err     error
	)

	if cached {
		cc = mustCLIContext(cmd.Context())

		if svc, err = cc.Services(cmd.Context()); err != nil {
			return err
		}

		if svc.registry.State() == registry.StateEmpty {
			return errors.New("no cached listing (run 'cloudo ls' first)")
		}

		records = svc.registry.Snapshot()
		cc.Statusf("Cached listing from %s.\n", formatAge(svc.registry.SyncedAt()))
	} else {
		if cc, svc, err = authedServices(cmd); err != nil {
			return err
		}

		if records, err = svc.registry.Resync(cmd.Context()); err != nil {
			return explainAuth(err)
		}
	}

	if cc.Flags.JSON {
		out := make([]fileJSON, 0, len(records))
		for i := range records {
			out = append(out, toFileJSON(&records[i]))
		}

		return printJSON(cc.Stdout, out)
	}

	if len(records) == 0 {
		cc.Statusf("No files.\n")

		return nil
	}

	rows := make([][]string, 0, len(records))
	for i := range records {
		f := &records[i]
		rows = append(rows, []string{f.ID, f.Name, formatSize(f.Size), formatTime(f.CreatedAt)})
	}

	printTable(cc.Stdout, []string{"ID", "Name", "Size", "Created"}, rows)

	return nil
}

// uploadResult is the outcome of one file in a put.
type uploadResult struct {
	path   string
	record *api.FileRecord
	err    error
}

func runPut(cmd *cobra.Command, args []string) error {
	cc, svc, err := authedServices(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	results := make([]uploadResult, len(args))
	progress := newProgressPrinter(cc, len(args))

	var g errgroup.Group
	g.SetLimit(cc.Cfg.Transfers.ParallelUploads)

	for i, path := range args {
		g.Go(func() error {
			rec, err := uploadOne(ctx, svc, path, progress)
			results[i] = uploadResult{path: path, record: rec, err: err}

			return nil
		})
	}

	_ = g.Wait()

	var (
		errs     []error
		uploaded []fileJSON
	)

	for _, r := range results {
		if r.err != nil {
			errs = append(errs, explainAuth(r.err))

			continue
		}

		uploaded = append(uploaded, toFileJSON(r.record))

		if !cc.Flags.JSON {
			fmt.Fprintf(cc.Stdout, "%s\t%s\n", r.record.ID, r.record.Name)
		}
	}

	if len(uploaded) > 0 {
		refreshListing(ctx, cc, svc)
	}

	if cc.Flags.JSON {
		if uploaded == nil {
			uploaded = []fileJSON{}
		}

		if err := printJSON(cc.Stdout, uploaded); err != nil {
			return err
		}
	}

	return errors.Join(errs...)
}

// uploadOne runs a single upload task to completion, forwarding progress.
func uploadOne(ctx context.Context, svc *services, path string, progress *progressPrinter) (*api.FileRecord, error) {
	task, err := svc.orch.UploadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	for ev := range task.Events() {
		switch ev.Kind {
		case transfer.EventProgress:
			progress.update(task.Name(), ev.Percent)
		case transfer.EventCompleted:
			progress.done(task.Name(), "done")
		case transfer.EventFailed:
			progress.done(task.Name(), "failed")
		}
	}

	return task.Wait()
}

// refreshListing resyncs after a mutation. The mutation already succeeded,
// so a failure here is only a warning.
func refreshListing(ctx context.Context, cc *CLIContext, svc *services) {
	if _, err := svc.registry.Resync(ctx); err != nil {
		cc.Logger.Warn("refreshing listing", slog.String("error", err.Error()))
	}
}

func runRm(cmd *cobra.Command, args []string) error {
	cc, svc, err := authedServices(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	var (
		errs    []error
		removed int
	)

	for _, arg := range args {
		target, err := resolveTarget(ctx, cc, svc, arg)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		if err := svc.orch.Remove(ctx, target.ID); err != nil {
			if errors.Is(err, api.ErrNotFound) {
				err = fmt.Errorf("%s: no such file", arg)
			}

			errs = append(errs, explainAuth(err))

			continue
		}

		removed++

		cc.Statusf("Deleted %s (%s).\n", target.Name, target.ID)
	}

	if removed > 0 {
		refreshListing(ctx, cc, svc)
	}

	return errors.Join(errs...)
}

func runURL(cmd *cobra.Command, args []string) error {
	cc, svc, err := authedServices(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	target, err := resolveTarget(ctx, cc, svc, args[0])
	if err != nil {
		return err
	}

	loc, err := svc.orch.ResolveDownloadLocator(ctx, target.ID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return fmt.Errorf("%s: no such file", args[0])
		}

		return explainAuth(err)
	}

	fmt.Fprintln(cc.Stdout, loc.String())

	return nil
}

// resolveTarget maps a command argument to a file: an exact identifier
// first, then a unique exact name. An unknown argument is passed through as
// an identifier so the server has the final word.
func resolveTarget(ctx context.Context, cc *CLIContext, svc *services, arg string) (api.FileRecord, error) {
	if svc.registry.State() != registry.StatePopulated {
		if _, err := svc.registry.Resync(ctx); err != nil {
			if errors.Is(err, api.ErrAuth) {
				return api.FileRecord{}, explainAuth(err)
			}

			cc.Logger.Warn("listing unavailable, using argument as identifier",
				slog.String("arg", arg),
				slog.String("error", err.Error()),
			)
		}
	}

	if rec, ok := svc.registry.Lookup(arg); ok {
		return rec, nil
	}

	matches := svc.registry.FindByName(arg)

	switch len(matches) {
	case 0:
		return api.FileRecord{ID: arg, Name: arg, Size: api.SizeUnknown}, nil
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}

		return api.FileRecord{}, fmt.Errorf("%q matches %d files (%s); use an identifier",
			arg, len(matches), strings.Join(ids, ", "))
	}
}

// progressPrinter renders upload progress on stderr. A single upload on a
// terminal gets a live percentage; otherwise only the outcome is printed.
type progressPrinter struct {
	cc   *CLIContext
	live bool
	mu   sync.Mutex
}

func newProgressPrinter(cc *CLIContext, files int) *progressPrinter {
	return &progressPrinter{
		cc:   cc,
		live: files == 1 && !cc.Flags.Quiet && isTerminal(cc.Stderr),
	}
}

func (p *progressPrinter) update(name string, percent int) {
	if !p.live {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.cc.Stderr, "\r%s  %3d%%", filepath.Base(name), percent)
}

func (p *progressPrinter) done(name, outcome string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live {
		fmt.Fprintf(p.cc.Stderr, "\r%s  %s\n", filepath.Base(name), outcome)

		return
	}

	p.cc.Statusf("%s: %s\n", name, outcome)
}
