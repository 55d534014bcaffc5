package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/dmitrijs2005/projsync/internal/models"
	"github.com/dmitrijs2005/projsync/internal/project"
	"github.com/dmitrijs2005/projsync/internal/syncer"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// isTerminal is a test seam for term.IsTerminal on stdin.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// getSimpleText prints a prompt to w and reads one trimmed line. A partial
// line before EOF is returned as is.
func getSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func formatOutcome(o syncer.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %s", o.Action, o.ProjectID)
	if o.Name != "" {
		fmt.Fprintf(&b, " (%s)", o.Name)
	}
	if o.Files > 0 {
		fmt.Fprintf(&b, " files=%d", o.Files)
	}
	if o.NewID != "" {
		fmt.Fprintf(&b, " new_id=%s", o.NewID)
	}
	switch {
	case o.Err != nil:
		fmt.Fprintf(&b, ": %v", o.Err)
	case o.Conflict != nil:
		fmt.Fprintf(&b, ": %s", o.Conflict)
	case o.Detail != "":
		fmt.Fprintf(&b, ": %s", o.Detail)
	}
	return b.String()
}

func printReport(rep *syncer.Report) {
	if rep.RegistryMissing && len(rep.Outcomes) == 0 {
		printlnFn("shared registry not found, nothing to do")
		return
	}
	for _, o := range rep.Outcomes {
		printlnFn(formatOutcome(o))
	}
	if rep.RegistryErr != nil {
		printlnFn("registry:", rep.RegistryErr)
	}
	printlnFn(fmt.Sprintf("%d transferred, %d in sync, %d conflicts, %d failed",
		rep.Transfers(), rep.Count(syncer.ActionInSync), len(rep.Conflicts()), rep.Count(syncer.ActionFailed)))
}

func formatEntry(e models.RegistryEntry) string {
	flags := []string{}
	if !e.CloudSync {
		flags = append(flags, "local")
	}
	if e.Deleted {
		flags = append(flags, "deleted")
	}
	s := fmt.Sprintf("%s  %-24s %s", e.ID, e.Name, time.Unix(e.UpdatedTS, 0).UTC().Format(time.RFC3339))
	if len(flags) > 0 {
		s += " [" + strings.Join(flags, ",") + "]"
	}
	return s
}

func formatEvent(ev models.SyncEvent) string {
	s := fmt.Sprintf("%s  %-12s %-16s %s", ev.OccurredAt.Format(time.RFC3339), ev.Operation, ev.Action, ev.ProjectID)
	if ev.ProjectName != "" {
		s += " (" + ev.ProjectName + ")"
	}
	if ev.Detail != "" {
		s += ": " + ev.Detail
	}
	return s
}

func formatEvidence(f project.EvidenceFile) string {
	if !f.Present {
		return f.Path + " (missing)"
	}
	return f.Path
}
