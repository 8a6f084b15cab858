package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trialsite/siteaccess/pkg/hierarchy"
)

func newFilterCmd(opts *options) *cobra.Command {
	var (
		folder  int64
		docType string
		root    bool
	)

	cmd := &cobra.Command{
		Use:   "filter USER",
		Short: "List the documents a user may read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			s, err := loadSite(cmd.Context(), opts.fixturePath, opts.log)
			if err != nil {
				return err
			}
			p, err := s.principal(userID)
			if err != nil {
				return err
			}

			filter := hierarchy.DocumentFilter{RootOnly: root}
			if folder > 0 {
				stored, err := s.folder(folder)
				if err != nil {
					return err
				}
				filter.FolderID = &stored
			}
			if docType != "" {
				if filter.Type, err = hierarchy.ParseDocumentType(docType); err != nil {
					return err
				}
			}

			docs, err := s.catalog.ListDocuments(cmd.Context(), p, filter)
			if err != nil {
				return err
			}
			for i := range docs {
				docs[i].ID = s.documents[docs[i].ID]
				docs[i].FolderID = s.localFolder(docs[i].FolderID)
			}

			out := cmd.OutOrStdout()
			if opts.json {
				if docs == nil {
					docs = []hierarchy.Document{}
				}
				return printJSON(out, docs)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tTYPE\tFOLDER")
			for _, d := range docs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.ID, d.Title, d.Type, formatID(d.FolderID))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "\n%d of %d document(s) readable by user %d\n", len(docs), len(s.fixture.Documents), userID)
			return err
		},
	}

	cmd.Flags().Int64Var(&folder, "folder", 0, "Only documents directly in this folder")
	cmd.Flags().BoolVar(&root, "root", false, "Only documents outside any folder")
	cmd.Flags().StringVar(&docType, "type", "", "Only documents of this type")
	return cmd
}
