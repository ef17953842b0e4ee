package orchestrator

import (
	"io"

	"github.com/joyshmitz/clawbox/internal/status"
)

// Status reports on one VM (n != nil) or every known VM (n == nil), writing
// a table to w or, if asJSON, an indented JSON array.
func (o *Orchestrator) Status(n *int, asJSON bool, w io.Writer) error {
	if n != nil {
		if err := validateNumber(*n); err != nil {
			return err
		}
		report, err := status.Report(o.Ctx, o.name(*n))
		if err != nil {
			return err
		}
		if asJSON {
			return status.RenderJSON(w, []status.VMStatus{report})
		}
		status.RenderText(w, []status.VMStatus{report})
		return nil
	}

	reports, err := status.ReportAll(o.Ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return status.RenderJSON(w, reports)
	}
	status.RenderText(w, reports)
	return nil
}
