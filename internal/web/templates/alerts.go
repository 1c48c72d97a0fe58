// Package templates holds the HTML fragments returned to HTMX clients.
package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/usageimport/internal/core"
)

// ErrorAlert renders a dismissible error box with an optional suggested action.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div class="alert alert-error" role="alert"><p class="alert-message">`+
			templ.EscapeString(message)+`</p>`); err != nil {
			return err
		}
		if action != "" {
			if _, err := io.WriteString(w, `<p class="alert-action">`+templ.EscapeString(action)+`</p>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `<small class="alert-code">`+templ.EscapeString(code)+`</small></div>`)
		return err
	})
}

// ImportSummary renders the counts of a successful import.
func ImportSummary(result *core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		c := result.Counts
		_, err := fmt.Fprintf(w,
			`<div class="alert alert-success" role="status"><p>Generation %d committed from %s</p>`+
				`<ul><li>Partners: %d</li><li>Customers: %d</li><li>Products: %d</li><li>Usages: %d</li></ul>`+
				`<small>%d of %d rows accepted</small></div>`,
			result.Generation, templ.EscapeString(result.Run.FileName),
			c.Partners, c.Customers, c.Products, c.Usages,
			result.Run.RowsAccepted, result.Run.RowsRead,
		)
		return err
	})
}

// ImportRunsTable renders recent import runs, newest first.
func ImportRunsTable(runs []core.ImportRun) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(runs) == 0 {
			_, err := io.WriteString(w, `<p class="empty">No imports yet.</p>`)
			return err
		}
		if _, err := io.WriteString(w, `<table class="import-runs"><thead><tr>`+
			`<th>Started</th><th>File</th><th>Rows</th><th>Rejected</th><th>Duration</th><th>Status</th>`+
			`</tr></thead><tbody>`); err != nil {
			return err
		}
		for _, run := range runs {
			status := "ok"
			if !run.Success {
				status = run.FailureReason
			}
			if _, err := io.WriteString(w, `<tr><td>`+run.StartedAt.Format("2006-01-02 15:04:05")+
				`</td><td>`+templ.EscapeString(run.FileName)+
				`</td><td>`+strconv.Itoa(run.RowsRead)+
				`</td><td>`+strconv.Itoa(run.RowsRejected)+
				`</td><td>`+strconv.FormatInt(run.Duration().Milliseconds(), 10)+` ms`+
				`</td><td>`+templ.EscapeString(status)+`</td></tr>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}
