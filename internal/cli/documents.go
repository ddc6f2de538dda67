package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docshelf/backend/internal/client"
	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/tree"
)

// location is where a node sits in the tree.
type location struct {
	parent   string
	siblings []*models.HashDoc
	index    int
}

// locate finds id among roots and returns its siblings and position.
func locate(roots []*models.HashDoc, parent, id string) (location, bool) {
	for i, d := range roots {
		if d.ID == id {
			return location{parent: parent, siblings: roots, index: i}, true
		}
		if loc, ok := locate(d.Children, d.ID, id); ok {
			return loc, true
		}
	}
	return location{}, false
}

// folderChildren returns the children of folder, or the roots when folder
// is empty.
func folderChildren(roots []*models.HashDoc, folder string) ([]*models.HashDoc, error) {
	if folder == "" {
		return roots, nil
	}
	doc := tree.Find(roots, folder)
	if doc == nil {
		return nil, fmt.Errorf("folder %s not found", folder)
	}
	if !doc.IsFolder() {
		return nil, fmt.Errorf("%s is not a folder", folder)
	}
	return doc.Children, nil
}

func formatSize(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.1f KiB", float64(n)/1024)
	}
	return fmt.Sprintf("%d B", n)
}

// printTree writes one line per node, indented by depth.
func printTree(out io.Writer, roots []*models.HashDoc) {
	tree.Walk(roots, func(doc *models.HashDoc, depth int) {
		indent := strings.Repeat("  ", depth)
		if doc.IsFolder() {
			fmt.Fprintf(out, "%s%s/  [%s]\n", indent, doc.Name, doc.ID)
			return
		}
		fmt.Fprintf(out, "%s%s  [%s]  %s\n", indent, doc.Name, doc.ID, formatSize(doc.Size))
	})
}

func newListCmd() *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"tree", "list"},
		Short:   "Show the document tree",
		Long: `Show your documents and folders as a tree.

Example:
  docshelf ls
  docshelf ls --folder 3f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			roots, err := c.ListDocuments(GetContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}
			nodes, err := folderChildren(roots, folder)
			if err != nil {
				return err
			}
			if len(nodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
				return nil
			}
			printTree(cmd.OutOrStdout(), nodes)
			return nil
		},
	}

	cmd.Flags().StringVarP(&folder, "folder", "f", "", "Only show this folder")
	return cmd
}

func newGetCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Download a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			ctx := GetContext(cmd)
			id := args[0]

			if output == "" {
				roots, err := c.ListDocuments(ctx)
				if err != nil {
					return fmt.Errorf("failed to list documents: %w", err)
				}
				doc := tree.Find(roots, id)
				if doc == nil {
					return fmt.Errorf("document %s not found", id)
				}
				if doc.IsFolder() {
					return fmt.Errorf("%s is a folder", id)
				}
				output = filepath.Base(doc.Name + doc.Extension)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			n, err := c.Download(ctx, id, w)
			if err != nil {
				if output != "-" {
					os.Remove(output)
				}
				return fmt.Errorf("failed to download: %w", err)
			}
			if output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved %s (%s)\n", output, formatSize(n))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, - for stdout (default: the document name)")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a document or a folder with its contents",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			if err := c.DeleteDocument(GetContext(cmd), args[0]); err != nil {
				return fmt.Errorf("failed to delete %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
			return nil
		},
	}
}

func newMoveCmd() *cobra.Command {
	var parent string
	var toRoot bool

	cmd := &cobra.Command{
		Use:   "mv ID",
		Short: "Move a document or folder",
		Long: `Move a document or folder into another folder.

Example:
  docshelf mv 3f1c... --parent 9a2b...
  docshelf mv 3f1c... --root`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if parent == "" && !toRoot {
				return fmt.Errorf("one of --parent or --root is required")
			}
			if parent != "" && toRoot {
				return fmt.Errorf("--parent and --root are mutually exclusive")
			}
			c, err := authedClient()
			if err != nil {
				return err
			}
			req := client.UpdateRequest{ParentID: parent, SetParentToRoot: toRoot}
			if err := c.UpdateDocument(GetContext(cmd), args[0], req); err != nil {
				return fmt.Errorf("failed to move %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Moved %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Destination folder ID")
	cmd.Flags().BoolVar(&toRoot, "root", false, "Move to the top level")
	return cmd
}
