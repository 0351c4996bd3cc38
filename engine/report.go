// report.go - Export hook for rendering a finished count to a document.
//
// Rendering itself (PDF, CSV, whatever the caller wants) lives outside the
// engine; this is only the seam it plugs into.
package engine

import "context"

// ReportRenderer renders a fully-loaded session, with its computed summary,
// to a document. Implementations are injected by the hosting application.
type ReportRenderer interface {
	// Render returns the document bytes and their MIME content type.
	Render(ctx context.Context, sc *StockCount, summary SessionSummary) ([]byte, string, error)
}
