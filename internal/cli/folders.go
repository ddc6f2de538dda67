package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/docshelf/backend/internal/client"
	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/tree"
)

// printNotifier prints tree notifications.
type printNotifier struct {
	out io.Writer
}

func (n printNotifier) Success(msg string) {
	fmt.Fprintf(n.out, "✓ %s\n", msg)
}

// submitError converts a failed submission into a command error.
func submitError(action string, res tree.SubmitResult) error {
	if res.Kind == tree.SubmitValidationError {
		return fmt.Errorf("invalid name: %s", res.Message)
	}
	if res.Err != nil {
		return fmt.Errorf("failed to %s: %w", action, res.Err)
	}
	return fmt.Errorf("failed to %s: %s", action, res.Message)
}

// createFolder runs the tree's creation form for name under parent: a
// placeholder node is inserted first and replaced by the server's folder.
func createFolder(ctx context.Context, c *client.Client, parent, name string, out io.Writer) (*models.HashDoc, error) {
	roots, err := c.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	children, err := folderChildren(roots, parent)
	if err != nil {
		return nil, err
	}

	container := tree.NewContainer(parent, children)
	container.BeginCreate(0)
	ctrl := tree.NewController(container.Props(0), tree.Deps{
		Creator:  c,
		Notifier: printNotifier{out: out},
	}, container.Callbacks())
	defer ctrl.Close()

	res := ctrl.Submit(ctx, name)
	if !res.OK() {
		container.OnFolderCreationDiscarded(container.Props(0).Doc, 0)
		return nil, submitError("create folder", res)
	}
	ctrl.Update(container.Props(0))
	ctrl.Render()
	return res.Doc, nil
}

// renameDocument runs the tree's edit form for id.
func renameDocument(ctx context.Context, c *client.Client, id, name string) (*models.HashDoc, error) {
	roots, err := c.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	loc, ok := locate(roots, "", id)
	if !ok {
		return nil, fmt.Errorf("document %s not found", id)
	}

	container := tree.NewContainer(loc.parent, loc.siblings)
	container.BeginEdit(loc.index)
	ctrl := tree.NewController(container.Props(loc.index), tree.Deps{Renamer: c}, container.Callbacks())
	defer ctrl.Close()

	res := ctrl.Rename(ctx, name)
	if !res.OK() {
		container.OnDocEditingDiscard(container.Props(loc.index).Doc)
		return nil, submitError("rename", res)
	}
	return container.Props(loc.index).Doc, nil
}

func newMkdirCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "mkdir NAME",
		Short: "Create a folder",
		Long: `Create a folder at the top level or inside another folder.

Example:
  docshelf mkdir "Papers"
  docshelf mkdir "2024" --parent 9a2b...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			doc, err := createFolder(GetContext(cmd), c, parent, args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  ID: %s\n", doc.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Parent folder ID (default: top level)")
	return cmd
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a document or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			doc, err := renameDocument(GetContext(cmd), c, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Renamed %s to %s\n", doc.ID, doc.Name)
			return nil
		},
	}
}
