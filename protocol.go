package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

const (
	protocolMultipart = "multipart"
	protocolTwoStep   = "two-step"
)

// AttachmentRef identifies an attachment embedded in a description.
type AttachmentRef struct {
	ID  string // digits extracted from the image src
	Src string // the original src URL, used by the direct-URL fallback
}

// AttachmentProtocol abstracts the two observed server API shapes for moving
// attachment content. The pipeline only depends on this contract: a download
// stages exactly one local file, and one logical upload yields exactly one
// new attachment id.
type AttachmentProtocol interface {
	Download(ctx context.Context, ref AttachmentRef) (StagedFile, error)
	Upload(ctx context.Context, stagedPath, filename string) (int, error)
	ReferenceURL(attachmentID int, filename string) string
}

// newProtocol selects the protocol adapter configured in settings.
func newProtocol(client *Client, settings *Settings) (AttachmentProtocol, error) {
	downloader := attachmentDownloader{
		client:     client,
		fallback:   settings.Download.Fallback,
		stagingDir: settings.Download.StagingDir,
	}

	switch settings.Server.UploadProtocol {
	case protocolMultipart:
		return &multipartProtocol{
			attachmentDownloader: downloader,
			project:              settings.Server.Project,
			itemType:             settings.Server.AttachmentType,
		}, nil
	case protocolTwoStep:
		return &twoStepProtocol{
			attachmentDownloader: downloader,
			project:              settings.Server.Project,
			itemType:             settings.Server.AttachmentType,
		}, nil
	default:
		return nil, fmt.Errorf("unknown upload protocol %q (want %q or %q)",
			settings.Server.UploadProtocol, protocolMultipart, protocolTwoStep)
	}
}

// attachmentDownloader implements the download half shared by both protocol
// variants.
type attachmentDownloader struct {
	client     *Client
	fallback   bool
	stagingDir string
}

// Download fetches the attachment binary through the file endpoint. With
// fallback enabled, a 404 retries the image's original src URL directly
// before giving up.
func (d *attachmentDownloader) Download(ctx context.Context, ref AttachmentRef) (StagedFile, error) {
	fileURL := d.client.apiURL("attachments/" + ref.ID + "/file")
	staged, err := d.client.downloadToFile(ctx, fileURL, d.stagingDir)
	if err == nil {
		return staged, nil
	}

	var httpErr *HTTPError
	if d.fallback && errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		debugLog("attachment %s not found at file endpoint, trying direct URL %s", ref.ID, ref.Src)
		return d.client.downloadToFile(ctx, d.client.absoluteURL(ref.Src), d.stagingDir)
	}
	return StagedFile{}, err
}

type uploadResponse struct {
	Data struct {
		ID int `json:"id"`
	} `json:"data"`
}

// multipartProtocol uploads file and metadata in a single multipart request;
// the response carries the new attachment id directly.
type multipartProtocol struct {
	attachmentDownloader
	project  int
	itemType int
}

func (p *multipartProtocol) Upload(ctx context.Context, stagedPath, filename string) (int, error) {
	f, err := os.Open(stagedPath)
	if err != nil {
		return 0, fmt.Errorf("opening staged file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return 0, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return 0, fmt.Errorf("copying file into multipart body: %w", err)
	}
	writer.WriteField("project", strconv.Itoa(p.project))
	writer.WriteField("itemType", strconv.Itoa(p.itemType))
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("finalizing multipart body: %w", err)
	}

	endpoint := p.client.apiURL("attachments")
	req, err := p.client.newRequest(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("uploading attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	var payload uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decoding upload response: %w", err)
	}
	if payload.Data.ID == 0 {
		return 0, errors.New("upload response missing attachment id")
	}
	return payload.Data.ID, nil
}

// ReferenceURL returns the API-relative reference this variant embeds in
// descriptions.
func (p *multipartProtocol) ReferenceURL(attachmentID int, filename string) string {
	return fmt.Sprintf("/%s/attachments/%d", apiPath, attachmentID)
}

type attachmentCreate struct {
	Fields struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"fields"`
	Project  int `json:"project"`
	ItemType int `json:"itemType"`
}

// twoStepProtocol creates an attachment metadata record first, then uploads
// the raw bytes to the returned id in a second request.
type twoStepProtocol struct {
	attachmentDownloader
	project  int
	itemType int
}

func (p *twoStepProtocol) Upload(ctx context.Context, stagedPath, filename string) (int, error) {
	var create attachmentCreate
	create.Fields.Name = filename
	create.Fields.Description = "Replaced by attachment-replacer"
	create.Project = p.project
	create.ItemType = p.itemType

	body, err := json.Marshal(create)
	if err != nil {
		return 0, fmt.Errorf("encoding attachment metadata: %w", err)
	}

	endpoint := p.client.apiURL("attachments")
	req, err := p.client.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("creating attachment record: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return 0, &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	var payload uploadResponse
	err = json.NewDecoder(resp.Body).Decode(&payload)
	resp.Body.Close()
	if err != nil {
		return 0, fmt.Errorf("decoding attachment record response: %w", err)
	}
	if payload.Data.ID == 0 {
		return 0, errors.New("attachment record response missing id")
	}

	if err := p.uploadFileContent(ctx, payload.Data.ID, stagedPath, filename); err != nil {
		return 0, err
	}
	return payload.Data.ID, nil
}

// uploadFileContent sends the raw file bytes to the attachment's file
// endpoint. The content type is inferred from the filename extension rather
// than inherited from session defaults.
func (p *twoStepProtocol) uploadFileContent(ctx context.Context, attachmentID int, stagedPath, filename string) error {
	f, err := os.Open(stagedPath)
	if err != nil {
		return fmt.Errorf("opening staged file: %w", err)
	}
	defer f.Close()

	endpoint := p.client.apiURL(fmt.Sprintf("attachments/%d/file", attachmentID))
	req, err := p.client.newRequest(ctx, http.MethodPut, endpoint, f)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentTypeForFile(filename))

	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading attachment content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	}
	return nil
}

// ReferenceURL returns the public-facing reference this variant embeds in
// descriptions, carrying both id and filename.
func (p *twoStepProtocol) ReferenceURL(attachmentID int, filename string) string {
	return fmt.Sprintf("/attachment/%d/%s", attachmentID, url.PathEscape(filename))
}

// contentTypeForFile infers a content type from the file extension.
func contentTypeForFile(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
