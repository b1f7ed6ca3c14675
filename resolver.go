package main

import (
	"context"
	"fmt"
	"log"
)

// ItemResolver maps the user-facing global identifiers onto the server's
// internal item ids for one project.
type ItemResolver struct {
	client    *Client
	projectID int
}

// NewItemResolver creates a resolver for the given project.
func NewItemResolver(client *Client, projectID int) *ItemResolver {
	return &ItemResolver{client: client, projectID: projectID}
}

// Resolve fetches the full project listing and intersects it with the
// requested global identifiers, preserving request order. Identifiers absent
// from the project are logged as warnings and excluded; duplicates resolve
// once. A listing failure aborts the run.
func (r *ItemResolver) Resolve(ctx context.Context, globalIDs []string) ([]ResolvedItem, error) {
	log.Printf("Fetching all items from project %d...", r.projectID)
	items, err := r.client.ListProjectItems(ctx, r.projectID)
	if err != nil {
		return nil, fmt.Errorf("listing project items: %w", err)
	}
	log.Printf("Fetched %d items", len(items))

	byGlobalID := make(map[string]int, len(items))
	for _, item := range items {
		if item.Fields.GlobalID != "" {
			byGlobalID[item.Fields.GlobalID] = item.ID
		}
	}

	resolved := make([]ResolvedItem, 0, len(globalIDs))
	seen := make(map[string]bool, len(globalIDs))
	for _, globalID := range globalIDs {
		if seen[globalID] {
			continue
		}
		seen[globalID] = true

		itemID, ok := byGlobalID[globalID]
		if !ok {
			log.Printf("Warning: global ID %q not found in the project. Skipping.", globalID)
			continue
		}
		resolved = append(resolved, ResolvedItem{ID: itemID, GlobalID: globalID})
	}

	return resolved, nil
}
