package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers "config show": the values after every override layer
// (defaults -> file -> env -> CLI) has been applied.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.FileLoaded {
		ew.printf("# Effective configuration (file: %s)\n\n", r.Path)
	} else {
		ew.printf("# Effective configuration (defaults; no file at %s)\n\n", r.Path)
	}

	ew.printf("[server]\n")
	ew.printf("  base_url   = %q\n", r.Server.BaseURL)
	ew.printf("  token_file = %q\n", r.TokenPath)
	ew.printf("\n")

	ew.printf("[network]\n")
	ew.printf("  connect_timeout = %q\n", r.Network.ConnectTimeout)
	ew.printf("  data_timeout    = %q\n", r.Network.DataTimeout)
	ew.printf("  max_retries     = %d\n", r.Network.MaxRetries)

	if r.Network.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", r.Network.UserAgent)
	}

	ew.printf("\n")

	ew.printf("[transfers]\n")
	ew.printf("  parallel_uploads = %d\n", r.Transfers.ParallelUploads)
	ew.printf("  bandwidth_limit  = %q\n", r.Transfers.BandwidthLimit)
	ew.printf("  max_upload_size  = %q\n", r.Transfers.MaxUploadSize)
	ew.printf("\n")

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)
	ew.printf("\n")

	ew.printf("[cache]\n")
	ew.printf("  enabled = %t\n", r.Cache.Enabled)
	ew.printf("  path    = %q\n", r.CachePath)

	return ew.err
}

// errWriter captures the first write error; later writes are no-ops so
// callers can chain printf calls without checking each one.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
