package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

// ErrAuditFindings is returned when the audit finds inconsistencies, so the
// process exits non-zero.
var ErrAuditFindings = errors.New("audit found inconsistencies")

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report duplicate private rooms, duplicate pending requests and stale lastMessage pointers",
		Long: `Scan the document store for the inconsistencies concurrent writers can
leave behind: more than one private room for a user pair, more than one
pending friend request for a pair, and rooms whose lastMessage is dangling,
missing, or superseded by a later message a delete repair missed. Nothing
is modified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			b, err := openBackends(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer b.close()
			return runAudit(cmd.Context(), b.store, rootOpts.Format, cmd.OutOrStdout())
		},
	}
	return cmd
}

func runAudit(ctx context.Context, store docstore.Store, format string, w io.Writer) error {
	report, err := repositories.NewAuditor(store).Run(ctx)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		writeAuditText(w, report)
	}
	if !report.Clean() {
		return ErrAuditFindings
	}
	return nil
}

func writeAuditText(w io.Writer, report *repositories.AuditReport) {
	if report.Clean() {
		fmt.Fprintln(w, "no inconsistencies found")
		return
	}
	for _, d := range report.DuplicatePrivateRooms {
		fmt.Fprintf(w, "duplicate private rooms for %s and %s: %s\n", d.Users[0], d.Users[1], strings.Join(d.RoomIDs, ", "))
	}
	for _, d := range report.DuplicatePendingRequests {
		fmt.Fprintf(w, "duplicate pending requests between %s and %s: %s\n", d.Users[0], d.Users[1], strings.Join(d.RequestIDs, ", "))
	}
	for _, s := range report.StaleLastMessages {
		fmt.Fprintf(w, "stale lastMessage in room %s (%s): points at %s, newest is %s\n", s.RoomID, s.Reason, orNone(s.Pointer), orNone(s.Latest))
	}
}

func orNone(id string) string {
	if id == "" {
		return "(none)"
	}
	return id
}
