package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/client"
	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/progress"
	"github.com/docshelf/backend/internal/upload"
)

// uploadFiles uploads paths concurrently into parent and reports progress
// on ui. It returns the number of failed files.
func uploadFiles(ctx context.Context, c *client.Client, paths []string, parent string, ui *progress.UploadUI) int {
	mgr := upload.NewManager(c, c.UploadTimeout())

	type running struct {
		bar      *progress.FileBar
		transfer *upload.Transfer
		file     *os.File
	}
	var started []running
	failed := 0

	for i, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			ui.AddFileBar(filepath.Base(p), 0).Complete(nil, err)
			failed++
			continue
		}
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			f.Close()
			if err == nil {
				err = fmt.Errorf("is a directory")
			}
			ui.AddFileBar(filepath.Base(p), 0).Complete(nil, err)
			failed++
			continue
		}

		uf := upload.NewUploadableFile(ctx, upload.NumericID(int64(i+1)), filepath.Base(p), info.Size(), f)
		uf.Parent = parent
		bar := ui.AddFileBar(uf.Name, uf.Size)
		if err := mgr.Add(uf); err != nil {
			f.Close()
			bar.Complete(nil, err)
			failed++
			continue
		}
		t, err := mgr.Start(uf.ID, bar.Observe)
		if err != nil {
			f.Close()
			bar.Complete(nil, err)
			failed++
			continue
		}
		started = append(started, running{bar: bar, transfer: t, file: f})
	}

	for _, r := range started {
		docs, err := r.transfer.Wait()
		r.file.Close()
		ids := make([]string, 0, len(docs))
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
		r.bar.Complete(ids, err)
		if err != nil {
			failed++
		}
	}
	mgr.Wait()
	ui.Wait()

	for _, e := range mgr.List() {
		if e.Error != "" {
			logging.Debug("upload entry", zap.String("id", e.State.ID), zap.String("error", e.Error))
		}
	}
	return failed
}

func newUploadCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload PDF or EPUB documents",
		Long: `Upload one or more documents. Files are sent concurrently with a
progress bar per file.

Example:
  docshelf upload paper.pdf book.epub
  docshelf upload *.pdf --parent 9a2b...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			ui := progress.NewUploadUI(len(args))
			if failed := uploadFiles(GetContext(cmd), c, args, parent, ui); failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Destination folder ID (default: top level)")
	return cmd
}
