package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var attachmentIDPattern = regexp.MustCompile(`attachment/(\d+)`)

// AttachmentMigrator rewrites each item's embedded image to point at a
// renamed copy of its attachment, one item at a time.
type AttachmentMigrator struct {
	client    *Client
	protocol  AttachmentProtocol
	projectID int
	converter *md.Converter

	// sequence disambiguates renamed files within one run. It starts at 1
	// and advances only after a fully successful item.
	sequence int
}

// NewAttachmentMigrator creates a migrator using the given protocol adapter.
func NewAttachmentMigrator(client *Client, protocol AttachmentProtocol, projectID int) *AttachmentMigrator {
	return &AttachmentMigrator{
		client:    client,
		protocol:  protocol,
		projectID: projectID,
		converter: md.NewConverter("", true, nil),
		sequence:  1,
	}
}

// MigrateAll processes the resolved items strictly in order, yielding one
// record per item. A failure inside an item never propagates past its own
// boundary.
func (m *AttachmentMigrator) MigrateAll(ctx context.Context, items []ResolvedItem) []UpdateRecord {
	records := make([]UpdateRecord, 0, len(items))

	log.Printf("Processing %d items...", len(items))
	for i, item := range items {
		log.Printf("[%d/%d] Processing %s (item %d)", i+1, len(items), item.GlobalID, item.ID)
		record := m.migrateItem(ctx, item)
		records = append(records, record)

		if record.Status == StatusUpdated {
			log.Printf("✓ Updated %s", item.GlobalID)
		} else {
			log.Printf("✗ Skipped %s: %s", item.GlobalID, record.Reason)
		}
	}

	return records
}

// migrateItem runs the scrape-download-rename-upload-patch sequence for one
// item. Every failure is recorded as Skipped with a reason; the staged file
// is removed only on full success and left behind otherwise for diagnosis.
func (m *AttachmentMigrator) migrateItem(ctx context.Context, resolved ResolvedItem) UpdateRecord {
	record := UpdateRecord{
		GlobalID: resolved.GlobalID,
		ItemURL:  m.itemURL(resolved.ID),
		Status:   StatusSkipped,
	}

	item, err := m.client.GetItem(ctx, resolved.ID)
	if err != nil {
		record.Reason = fmt.Sprintf("fetching item: %v", err)
		return record
	}

	html := item.Fields.Description
	if html == "" {
		record.Reason = "no rich text content in the description field"
		return record
	}
	m.debugDescription(resolved.GlobalID, "current", html)

	src, err := extractImageSrc(html)
	if err != nil {
		record.Reason = fmt.Sprintf("parsing description: %v", err)
		return record
	}
	if src == "" {
		record.Reason = "no image found in the description field"
		return record
	}

	ref, ok := extractAttachmentRef(src)
	if !ok {
		record.Reason = "no attachment id found in the image URL"
		return record
	}

	log.Printf("  → Downloading attachment %s...", ref.ID)
	staged, err := m.protocol.Download(ctx, ref)
	if err != nil {
		record.Reason = fmt.Sprintf("downloading attachment %s: %v", ref.ID, err)
		return record
	}

	newFilename := sequencedFilename(staged.Name, m.sequence)

	log.Printf("  → Uploading %s...", newFilename)
	newID, err := m.protocol.Upload(ctx, staged.Path, newFilename)
	if err != nil {
		record.Reason = fmt.Sprintf("uploading %s: %v", newFilename, err)
		return record
	}

	// Literal substring substitution only; the rest of the markup must
	// come through byte-identical.
	newRef := m.protocol.ReferenceURL(newID, newFilename)
	updated := strings.Replace(html, src, newRef, 1)
	m.debugDescription(resolved.GlobalID, "updated", updated)

	log.Printf("  → Updating the description field...")
	if err := m.client.UpdateItemDescription(ctx, resolved.ID, updated); err != nil {
		record.Reason = fmt.Sprintf("updating item: %v", err)
		return record
	}

	os.Remove(staged.Path)
	record.Status = StatusUpdated
	m.sequence++
	return record
}

// itemURL builds the browser-viewable URL for an item.
func (m *AttachmentMigrator) itemURL(itemID int) string {
	return fmt.Sprintf("%s/perspective.req#/items/%d?projectId=%d", m.client.baseURL, itemID, m.projectID)
}

// debugDescription logs a readable markdown rendition of a description.
func (m *AttachmentMigrator) debugDescription(globalID, label, html string) {
	if !debugEnabled {
		return
	}
	markdown, err := m.converter.ConvertString(html)
	if err != nil {
		debugLog("%s description for %s not convertible: %v", label, globalID, err)
		return
	}
	debugLog("%s description for %s:\n%s", label, globalID, markdown)
}

// extractImageSrc returns the src of the first img tag in the HTML, or an
// empty string when there is no img or it carries no src.
func extractImageSrc(htmlText string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	img := doc.Find("img").First()
	if img.Length() == 0 {
		return "", nil
	}
	src, ok := img.Attr("src")
	if !ok {
		return "", nil
	}
	return src, nil
}

// extractAttachmentRef matches the attachment id out of an image src URL.
func extractAttachmentRef(src string) (AttachmentRef, bool) {
	match := attachmentIDPattern.FindStringSubmatch(src)
	if match == nil {
		return AttachmentRef{}, false
	}
	return AttachmentRef{ID: match[1], Src: src}, true
}

// sequencedFilename inserts a zero-padded sequence number before the file
// extension: diagram.png with sequence 7 becomes diagram_007.png.
func sequencedFilename(filename string, sequence int) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	return fmt.Sprintf("%s_%03d%s", stem, sequence, ext)
}
