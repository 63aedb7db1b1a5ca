package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/models"
)

// renderReports prints run reports in the selected format.
func renderReports(w io.Writer, format string, snaps []alerting.Snapshot) error {
	switch format {
	case outputJSON:
		return writeJSON(w, snaps)
	case outputPlain:
		for _, s := range snaps {
			line := fmt.Sprintf("%s: tenants=%d processed=%d notified=%d suppressed=%d emails=%d email_failures=%d mutations=%d entity_errors=%d duration=%s",
				s.Rule, s.Tenants, s.Processed, s.Notified, s.Suppressed, s.Emails, s.EmailFailures, s.Mutations, s.EntityErrors, s.Duration.Round(time.Millisecond))
			if s.EntityErrors > 0 || s.EmailFailures > 0 {
				line = color.YellowString(line)
			}
			fmt.Fprintln(w, line)
		}
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Job", "Tenants", "Processed", "Notified", "Suppressed", "Emails", "Email Failures", "Mutations", "Entity Errors", "Duration"})
	var total alerting.Snapshot
	for _, s := range snaps {
		tw.AppendRow(table.Row{s.Rule, s.Tenants, s.Processed, s.Notified, s.Suppressed, s.Emails, s.EmailFailures, s.Mutations, s.EntityErrors, s.Duration.Round(time.Millisecond)})
		total.Processed += s.Processed
		total.Notified += s.Notified
		total.Suppressed += s.Suppressed
		total.Emails += s.Emails
		total.EmailFailures += s.EmailFailures
		total.Mutations += s.Mutations
		total.EntityErrors += s.EntityErrors
		total.Duration += s.Duration
	}
	if len(snaps) > 1 {
		tw.AppendFooter(table.Row{"Total", "", total.Processed, total.Notified, total.Suppressed, total.Emails, total.EmailFailures, total.Mutations, total.EntityErrors, total.Duration.Round(time.Millisecond)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	tw.Render()
	return nil
}

// renderNotifications prints notifications in the selected format.
func renderNotifications(w io.Writer, format string, list []*models.Notification) error {
	switch format {
	case outputJSON:
		if list == nil {
			list = []*models.Notification{}
		}
		return writeJSON(w, list)
	case outputPlain:
		for _, n := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.Type, n.Status, n.RecipientEmail, n.Title)
		}
		return nil
	}

	if len(list) == 0 {
		fmt.Fprintln(w, "No notifications found.")
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Type", "Category", "Status", "Recipient", "Title", "Ack", "Created"})
	for _, n := range list {
		ack := ""
		if n.Acknowledged {
			ack = "yes"
		}
		tw.AppendRow(table.Row{n.ID, n.Type, n.Category, n.Status, n.RecipientEmail, text.Trim(n.Title, 60), ack, n.CreatedAt.Format("2006-01-02 15:04")})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d notification(s)", len(list))})
	tw.Render()
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
