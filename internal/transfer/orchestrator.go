// Package transfer drives file operations against the Cloudo backend: upload
// with progress and cancellation, listing, deletion and download-locator
// resolution. Only uploads run in the background; every other operation is a
// single blocking call surfaced to the caller unchanged in kind.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cloudo-app/cloudo-go/internal/api"
)

// FileService is the backend file surface the Orchestrator drives.
// *api.Client satisfies it.
type FileService interface {
	ListFiles(ctx context.Context) ([]api.FileRecord, error)
	Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string,
		progress api.ProgressFunc) (*api.FileRecord, error)
	DeleteFile(ctx context.Context, id string) error
	DownloadLocator(ctx context.Context, id string) (string, error)
}

// Locator is an addressable reference to a file's bytes, typically a signed
// URL. It is opaque and never logged.
type Locator string

func (l Locator) String() string { return string(l) }

// LogValue keeps locators out of structured logs.
func (Locator) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// Options tune an Orchestrator. The zero value is unlimited and never
// retries.
type Options struct {
	BandwidthLimit int64       // bytes per second shared by all uploads; 0 = unlimited
	MaxUploadSize  int64       // reject known-size payloads above this; 0 = no limit
	ReadRetry      RetryPolicy // applied to ListAll and ResolveDownloadLocator
}

// Orchestrator runs transfers. It is safe for concurrent use.
type Orchestrator struct {
	files   FileService
	limiter *BandwidthLimiter
	opts    Options
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator over files.
func NewOrchestrator(files FileService, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		files:   files,
		limiter: NewBandwidthLimiter(opts.BandwidthLimit, logger),
		opts:    opts,
		logger:  logger,
	}
}

// Upload starts sending p and returns immediately. The returned Task reports
// progress and the outcome. Cancelling ctx or calling Task.Cancel aborts the
// request. A failed upload is never retried; start a new task instead.
func (o *Orchestrator) Upload(ctx context.Context, p Payload) *Task {
	t := newTask(ctx, uuid.NewString(), p.Name)

	go o.run(t, p)

	return t
}

// UploadFile opens the local file at path and uploads it.
func (o *Orchestrator) UploadFile(ctx context.Context, path string) (*Task, error) {
	p, err := OpenPayload(path)
	if err != nil {
		return nil, err
	}

	return o.Upload(ctx, p), nil
}

func (o *Orchestrator) run(t *Task, p Payload) {
	defer p.close()

	logger := o.logger.With(slog.String("task_id", t.ID()), slog.String("name", p.Name))

	if err := o.admit(&p); err != nil {
		o.failTask(t, logger, err)
		return
	}

	t.start()

	if err := p.sniff(); err != nil {
		o.failTask(t, logger, err)
		return
	}

	content := o.limiter.WrapReader(t.ctx, p.Content)

	rec, err := o.files.Upload(t.ctx, p.Name, content, p.Size, p.ContentType, func(sent, total int64) {
		if total <= 0 {
			return
		}

		// 100 is reserved for the server acknowledgement.
		t.progress(int(min(sent*100/total, 99)))
	})
	if err != nil {
		o.failTask(t, logger, err)
		return
	}

	logger.Info("upload completed", slog.String("file_id", rec.ID))

	t.complete(rec)
}

// admit rejects payloads that must never reach the wire.
func (o *Orchestrator) admit(p *Payload) error {
	if err := p.validate(); err != nil {
		return err
	}

	if o.opts.MaxUploadSize > 0 && p.Size > o.opts.MaxUploadSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte upload limit",
			api.ErrTooLarge, p.Size, o.opts.MaxUploadSize)
	}

	return nil
}

func (o *Orchestrator) failTask(t *Task, logger *slog.Logger, err error) {
	te := &TransferError{
		Reason: classify(t.ctx, err),
		TaskID: t.ID(),
		Name:   t.Name(),
		Err:    err,
	}

	if te.Reason == ReasonCancelled {
		logger.Info("upload cancelled")
	} else {
		logger.Warn("upload failed",
			slog.String("reason", te.Reason.String()),
			slog.String("error", err.Error()),
		)
	}

	t.fail(te)
}

// ListAll fetches the complete remote listing in server order.
func (o *Orchestrator) ListAll(ctx context.Context) ([]api.FileRecord, error) {
	var records []api.FileRecord

	err := o.opts.ReadRetry.Do(ctx, func(ctx context.Context) error {
		var err error
		records, err = o.files.ListFiles(ctx)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: listing files: %w", err)
	}

	return records, nil
}

// Remove deletes one file. An unknown identifier fails with api.ErrNotFound.
func (o *Orchestrator) Remove(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("transfer: remove: %w: empty file identifier", api.ErrInvalidInput)
	}

	if err := o.files.DeleteFile(ctx, id); err != nil {
		return fmt.Errorf("transfer: removing %s: %w", id, err)
	}

	return nil
}

// ResolveDownloadLocator asks the backend where the file's bytes can be
// fetched. The bytes themselves are never downloaded.
func (o *Orchestrator) ResolveDownloadLocator(ctx context.Context, id string) (Locator, error) {
	if id == "" {
		return "", fmt.Errorf("transfer: resolve: %w: empty file identifier", api.ErrInvalidInput)
	}

	var locator string

	err := o.opts.ReadRetry.Do(ctx, func(ctx context.Context) error {
		var err error
		locator, err = o.files.DownloadLocator(ctx, id)

		return err
	})
	if err != nil {
		return "", fmt.Errorf("transfer: resolving download locator for %s: %w", id, err)
	}

	return Locator(locator), nil
}
