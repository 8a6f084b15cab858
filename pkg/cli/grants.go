package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/grants"
)

func newGrantsCmd(opts *options) *cobra.Command {
	var (
		document int64
		folder   int64
		user     int64
		role     string
	)

	cmd := &cobra.Command{
		Use:   "grants",
		Short: "List grants, optionally narrowed to one document, folder, user or role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set := 0
			for _, on := range []bool{document > 0, folder > 0, user > 0, role != ""} {
				if on {
					set++
				}
			}
			if set > 1 {
				return fmt.Errorf("--document, --folder, --user and --role are mutually exclusive")
			}

			s, err := loadSite(cmd.Context(), opts.fixturePath, opts.log)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var found []grants.Grant
			switch {
			case document > 0:
				id, err := s.document(document)
				if err != nil {
					return err
				}
				found, err = s.store.FindByDocument(ctx, id)
				if err != nil {
					return err
				}
			case folder > 0:
				id, err := s.folder(folder)
				if err != nil {
					return err
				}
				found, err = s.store.FindByFolder(ctx, id)
				if err != nil {
					return err
				}
			case user > 0:
				if found, err = s.store.FindByPrincipal(ctx, user); err != nil {
					return err
				}
			case role != "":
				r, err := auth.ParseRole(role)
				if err != nil {
					return err
				}
				if found, err = s.store.FindByRole(ctx, r); err != nil {
					return err
				}
			default:
				if found, err = s.allGrants(ctx); err != nil {
					return err
				}
			}

			for i := range found {
				found[i] = s.localGrant(found[i])
			}

			out := cmd.OutOrStdout()
			if opts.json {
				if found == nil {
					found = []grants.Grant{}
				}
				return printJSON(out, found)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDOCUMENT\tFOLDER\tFOR\tLEVEL")
			for _, g := range found {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					g.ID, formatID(g.DocumentID), formatID(g.FolderID), grantSubject(g.UserID, string(g.Role)), g.Level)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Int64Var(&document, "document", 0, "Grants on this document")
	cmd.Flags().Int64Var(&folder, "folder", 0, "Grants on this folder")
	cmd.Flags().Int64Var(&user, "user", 0, "Grants naming this user")
	cmd.Flags().StringVar(&role, "role", "", "Grants naming this role")
	return cmd
}
