package cmds

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	return data, nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			entries, err := a.List()
			if err != nil {
				return err
			}

			for _, entry := range entries {
				title := entry.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s  %-40s  %3d messages  %s\n",
					entry.ID, title, entry.MessageCount, entry.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation from the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return errors.Wrapf(err, "invalid conversation id %q", args[0])
			}
			return a.Delete(id)
		},
	}
}
