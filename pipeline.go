package main

import (
	"context"
	"fmt"
	"io"
	"log"
)

var debugEnabled bool

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	debugEnabled = enabled
}

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// SetLogOutput redirects all progress logging to the given writer. Hosts
// embedding the pipeline use this to observe log lines instead of standard
// output.
func SetLogOutput(w io.Writer) {
	log.SetOutput(w)
}

// Pipeline ties spreadsheet input, item resolution, and attachment migration
// together into one blocking run.
type Pipeline struct {
	client   *Client
	settings *Settings
}

// NewPipeline creates a pipeline over an authenticated client.
func NewPipeline(client *Client, settings *Settings) *Pipeline {
	return &Pipeline{client: client, settings: settings}
}

// Run executes the whole update sequence and returns the ordered records.
// Spreadsheet and listing failures abort the run; everything later is
// recovered at the per-item boundary.
func (p *Pipeline) Run(ctx context.Context, inputPath string) ([]UpdateRecord, error) {
	log.Printf("Reading the global ID list from %s...", inputPath)
	globalIDs, err := readGlobalIDs(inputPath)
	if err != nil {
		return nil, fmt.Errorf("reading global IDs: %w", err)
	}

	resolver := NewItemResolver(p.client, p.settings.Server.Project)
	resolved, err := resolver.Resolve(ctx, globalIDs)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		log.Printf("No matching items found to update.")
		return nil, nil
	}

	protocol, err := newProtocol(p.client, p.settings)
	if err != nil {
		return nil, err
	}

	migrator := NewAttachmentMigrator(p.client, protocol, p.settings.Server.Project)
	return migrator.MigrateAll(ctx, resolved), nil
}

// RunResult carries the outcome of an asynchronous run.
type RunResult struct {
	Records []UpdateRecord
	Err     error
}

// RunAsync schedules Run on its own goroutine and delivers the outcome over
// the returned channel. The pipeline itself stays strictly sequential; a
// cancelled context takes effect between items, never mid-item.
func (p *Pipeline) RunAsync(ctx context.Context, inputPath string) <-chan RunResult {
	done := make(chan RunResult, 1)
	go func() {
		records, err := p.Run(ctx, inputPath)
		done <- RunResult{Records: records, Err: err}
	}()
	return done
}
