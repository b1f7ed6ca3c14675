package main

import (
	"fmt"
	"html"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	reportFilename = "attachment-update-report.html"
	reportTitle    = "Attachment Update Report"
)

// writeReport renders the records into the fixed-name HTML report in the
// working directory and returns its path.
func writeReport(records []UpdateRecord) (string, error) {
	if err := os.WriteFile(reportFilename, []byte(renderHTMLReport(records)), 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return reportFilename, nil
}

// renderHTMLReport builds the full report document: a heading and a
// three-column table with a clickable link per item.
func renderHTMLReport(records []UpdateRecord) string {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Global ID", "Item URL", "Status"})
	style := tw.Style()
	style.HTML.CSSClass = "report-table"
	// Cell values are escaped by hand so the link column can carry an anchor.
	style.HTML.EscapeText = false

	for _, record := range records {
		link := fmt.Sprintf(`<a href="%s">Link</a>`, html.EscapeString(record.ItemURL))
		tw.AppendRow(table.Row{
			html.EscapeString(record.GlobalID),
			link,
			html.EscapeString(string(record.Status)),
		})
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table.report-table { border-collapse: collapse; }
table.report-table th, table.report-table td { border: 1px solid #53575a; padding: 0.4em 0.8em; text-align: left; }
table.report-table th { background-color: #0052cc; color: white; }
</style>
</head>
<body>
<h1>%s</h1>
%s
</body>
</html>
`, reportTitle, reportTitle, tw.RenderHTML())
}

// renderConsoleReport renders the same records as a terminal table.
func renderConsoleReport(records []UpdateRecord) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Global ID", "Item URL", "Status"})
	for _, record := range records {
		tw.AppendRow(table.Row{record.GlobalID, record.ItemURL, string(record.Status)})
	}
	return tw.Render()
}
