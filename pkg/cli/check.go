package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trialsite/siteaccess/pkg/access"
	"github.com/trialsite/siteaccess/pkg/domain"
)

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check [USER DOCUMENT LEVEL]",
		Short: "Run the fixture's checks, or answer a single question",
		Long: `Without arguments, check evaluates every entry under "checks" in the
fixture and fails when an expectation does not hold. With arguments it
reports whether USER holds LEVEL (READ, WRITE or DELETE) on DOCUMENT.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 3 {
				return fmt.Errorf("expected no arguments or USER DOCUMENT LEVEL, got %d argument(s)", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSite(cmd.Context(), opts.fixturePath, opts.log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				results, err := s.runChecks(cmd.Context())
				if err != nil {
					return err
				}
				return reportChecks(out, results, opts.json)
			}

			userID, documentID, level, err := parseQuestion(args)
			if err != nil {
				return err
			}
			d, err := s.explain(cmd.Context(), userID, documentID, level)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(out, map[string]interface{}{
					"user":      userID,
					"document":  documentID,
					"level":     level,
					"allowed":   d.Allowed,
					"effective": d.EffectiveLevel,
				})
			}
			_, err = fmt.Fprintln(out, verdict(d.Allowed))
			return err
		},
	}
}

func newExplainCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "explain USER DOCUMENT [LEVEL]",
		Short: "Show the grants behind a permission decision",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				args = append(args, domain.LevelRead.String())
			}
			userID, documentID, level, err := parseQuestion(args)
			if err != nil {
				return err
			}

			s, err := loadSite(cmd.Context(), opts.fixturePath, opts.log)
			if err != nil {
				return err
			}
			d, err := s.explain(cmd.Context(), userID, documentID, level)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), d)
			}
			return writeDecision(cmd.OutOrStdout(), userID, d)
		},
	}
}

func parseQuestion(args []string) (int64, int64, domain.Level, error) {
	userID, err := parseID(args[0], "user")
	if err != nil {
		return 0, 0, 0, err
	}
	documentID, err := parseID(args[1], "document")
	if err != nil {
		return 0, 0, 0, err
	}
	level, err := domain.ParseLevel(args[2])
	if err != nil {
		return 0, 0, 0, err
	}
	return userID, documentID, level, nil
}

func verdict(allowed bool) string {
	if allowed {
		return "ALLOWED"
	}
	return "DENIED"
}

func reportChecks(out io.Writer, results []checkResult, asJSON bool) error {
	failed := 0
	for _, r := range results {
		if !r.Pass {
			failed++
		}
	}

	if asJSON {
		if err := printJSON(out, results); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tUSER\tDOCUMENT\tLEVEL\tRESULT\tEFFECTIVE\tSTATUS")
		for _, r := range results {
			user := fmt.Sprintf("%d", r.User)
			if r.Inactive {
				user += " (inactive)"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				r.Position, user, r.Document, r.Level, verdict(r.Allowed), r.Effective, checkStatus(r))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d check(s), %d failed\n", len(results), failed)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d check(s) failed", failed, len(results))
	}
	return nil
}

func checkStatus(r checkResult) string {
	switch {
	case r.Expect == nil:
		return "-"
	case r.Pass:
		return "ok"
	default:
		return "FAIL (expected " + verdict(*r.Expect) + ")"
	}
}

func writeDecision(out io.Writer, userID int64, d *access.Decision) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Result:\t%s\n", verdict(d.Allowed))
	fmt.Fprintf(w, "User:\t%d\n", userID)
	fmt.Fprintf(w, "Document:\t%d\n", d.DocumentID)
	fmt.Fprintf(w, "Folder:\t%s\n", formatID(d.FolderID))
	fmt.Fprintf(w, "Requested:\t%s\n", d.Requested)
	fmt.Fprintf(w, "Effective:\t%s\n", d.EffectiveLevel)
	fmt.Fprintf(w, "Reason:\t%s\n", d.Reason)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(d.MatchedGrants) == 0 {
		return nil
	}
	fmt.Fprintln(out, "\nMatched grants:")
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tON\tFOR\tLEVEL")
	for _, g := range d.MatchedGrants {
		on := "document " + formatID(g.DocumentID)
		if g.FolderID != nil {
			on = "folder " + formatID(g.FolderID)
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", g.ID, on, grantSubject(g.UserID, string(g.Role)), g.Level)
	}
	return w.Flush()
}

func grantSubject(userID *int64, role string) string {
	if userID != nil {
		return "user " + formatID(userID)
	}
	return "role " + strings.ToUpper(role)
}
