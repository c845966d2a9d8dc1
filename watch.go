package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudo-app/cloudo-go/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload files dropped into a directory",
		Long: `Watch a local directory and upload every file created or rewritten in
it once the file has stopped changing for the settle period. Uploads run one
at a time. Subdirectories, hidden files and partial downloads are ignored.
Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().Duration("settle", watch.DefaultSettle, "quiet period before a file is uploaded")
	cmd.Flags().Bool("existing", false, "also upload files already in the directory")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cc, svc, err := authedServices(cmd)
	if err != nil {
		return err
	}

	settle, _ := cmd.Flags().GetDuration("settle")
	existing, _ := cmd.Flags().GetBool("existing")

	watcher, err := watch.NewFsWatcher()
	if err != nil {
		return err
	}

	upload := func(ctx context.Context, path string) error {
		rec, err := uploadOne(ctx, svc, path, newProgressPrinter(cc, 0))
		if err != nil {
			return explainAuth(err)
		}

		fmt.Fprintf(cc.Stdout, "%s\t%s\n", rec.ID, rec.Name)
		refreshListing(ctx, cc, svc)

		return nil
	}

	cc.Statusf("Watching %s (Ctrl-C to stop).\n", args[0])

	drop := watch.New(args[0], watcher, upload, watch.Options{Settle: settle, Existing: existing}, cc.Logger)

	return drop.Run(cmd.Context())
}
