package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		authMode string
		username string
		password string
		wantErr  bool
	}{
		{"valid basic", "https://jama.example.com", authBasic, "user", "pass", false},
		{"valid oauth", "https://jama.example.com", authOAuth, "id", "secret", false},
		{"trailing slash trimmed", "https://jama.example.com/", authBasic, "user", "pass", false},
		{"empty url", "", authBasic, "user", "pass", true},
		{"unknown auth mode", "https://jama.example.com", "token", "user", "pass", true},
		{"missing credentials", "https://jama.example.com", authBasic, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.baseURL, tt.authMode, tt.username, tt.password)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}
			if client.baseURL != "https://jama.example.com" {
				t.Errorf("baseURL = %q, want %q", client.baseURL, "https://jama.example.com")
			}
		})
	}
}

func TestListProjectItemsPagination(t *testing.T) {
	// 5 items served in pages of 2; the short final page terminates the loop.
	items := make([]Item, 5)
	for i := range items {
		items[i] = Item{ID: 100 + i, Fields: ItemFields{GlobalID: fmt.Sprintf("REQ-%d", i+1)}}
	}

	var offsets []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "user" || pass != "pass" {
			t.Errorf("request missing basic auth credentials")
		}
		if r.URL.Query().Get("project") != "77" {
			t.Errorf("project = %q, want %q", r.URL.Query().Get("project"), "77")
		}

		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		offsets = append(offsets, startAt)

		end := startAt + maxResults
		if end > len(items) {
			end = len(items)
		}
		page := []Item{}
		if startAt < len(items) {
			page = items[startAt:end]
		}
		json.NewEncoder(w).Encode(itemsResponse{Data: page})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, authBasic, "user", "pass",
		WithHTTPClient(server.Client()), WithPageSize(2))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	got, err := client.ListProjectItems(context.Background(), 77)
	if err != nil {
		t.Fatalf("ListProjectItems() error = %v", err)
	}

	if len(got) != 5 {
		t.Errorf("got %d items, want 5", len(got))
	}
	wantOffsets := []int{0, 2, 4}
	if len(offsets) != len(wantOffsets) {
		t.Fatalf("made %d page requests %v, want %d", len(offsets), offsets, len(wantOffsets))
	}
	for i, offset := range offsets {
		if offset != wantOffsets[i] {
			t.Errorf("page %d startAt = %d, want %d", i, offset, wantOffsets[i])
		}
	}
}

func TestListProjectItemsExactPageBoundary(t *testing.T) {
	// 4 items with page size 2: the third request returns an empty page.
	items := make([]Item, 4)
	for i := range items {
		items[i] = Item{ID: 200 + i}
	}

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		end := startAt + 2
		if end > len(items) {
			end = len(items)
		}
		page := []Item{}
		if startAt < len(items) {
			page = items[startAt:end]
		}
		json.NewEncoder(w).Encode(itemsResponse{Data: page})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, authBasic, "user", "pass",
		WithHTTPClient(server.Client()), WithPageSize(2))

	got, err := client.ListProjectItems(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListProjectItems() error = %v", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d items, want 4", len(got))
	}
	if requests != 3 {
		t.Errorf("made %d requests, want 3", requests)
	}
}

func TestListProjectItemsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, authBasic, "user", "pass", WithHTTPClient(server.Client()))

	_, err := client.ListProjectItems(context.Background(), 1)
	if err == nil {
		t.Fatal("ListProjectItems() should return error on HTTP 500")
	}
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("error type = %T, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, http.StatusInternalServerError)
	}
}

func TestGetItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/latest/items/42" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/rest/latest/items/42")
		}
		json.NewEncoder(w).Encode(itemResponse{Data: Item{
			ID:     42,
			Fields: ItemFields{GlobalID: "REQ-42", Description: "<p>hello</p>"},
		}})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, authBasic, "user", "pass", WithHTTPClient(server.Client()))

	item, err := client.GetItem(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if item.Fields.GlobalID != "REQ-42" {
		t.Errorf("GlobalID = %q, want %q", item.Fields.GlobalID, "REQ-42")
	}
	if item.Fields.Description != "<p>hello</p>" {
		t.Errorf("Description = %q, want %q", item.Fields.Description, "<p>hello</p>")
	}
}

func TestUpdateItemDescription(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		var update descriptionUpdate
		json.NewDecoder(r.Body).Decode(&update)
		gotBody = update.Fields.Description
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, authBasic, "user", "pass", WithHTTPClient(server.Client()))

	err := client.UpdateItemDescription(context.Background(), 42, "<p>new</p>")
	if err != nil {
		t.Fatalf("UpdateItemDescription() error = %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if gotPath != "/rest/latest/items/42" {
		t.Errorf("path = %q, want %q", gotPath, "/rest/latest/items/42")
	}
	if gotBody != "<p>new</p>" {
		t.Errorf("description = %q, want %q", gotBody, "<p>new</p>")
	}
}

func TestLoginOAuth(t *testing.T) {
	var sawToken bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/oauth/token":
			if r.Method != http.MethodPost {
				t.Errorf("token method = %q, want POST", r.Method)
			}
			if user, _, ok := r.BasicAuth(); !ok || user != "client-id" {
				t.Errorf("token request missing client credentials")
			}
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
		case "/rest/latest/items/1":
			if r.Header.Get("Authorization") != "Bearer tok-123" {
				t.Errorf("Authorization = %q, want bearer token", r.Header.Get("Authorization"))
			}
			sawToken = true
			json.NewEncoder(w).Encode(itemResponse{Data: Item{ID: 1}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, authOAuth, "client-id", "client-secret", WithHTTPClient(server.Client()))

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := client.GetItem(context.Background(), 1); err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if !sawToken {
		t.Error("item request was not made with the bearer token")
	}
}

func TestLoginBasicIsNoOp(t *testing.T) {
	client, _ := NewClient("https://jama.example.com", authBasic, "user", "pass")
	if err := client.Login(context.Background()); err != nil {
		t.Errorf("Login() error = %v, want nil for basic auth", err)
	}
	if client.token != "" {
		t.Errorf("token = %q, want empty", client.token)
	}
}

func TestDownloadToFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="diagram.png"`)
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, authBasic, "user", "pass", WithHTTPClient(server.Client()))
	stagingDir := t.TempDir()

	staged, err := client.downloadToFile(context.Background(), server.URL+"/rest/latest/attachments/5/file", stagingDir)
	if err != nil {
		t.Fatalf("downloadToFile() error = %v", err)
	}
	if staged.Name != "diagram.png" {
		t.Errorf("Name = %q, want %q", staged.Name, "diagram.png")
	}
	if staged.Path != filepath.Join(stagingDir, "diagram.png") {
		t.Errorf("Path = %q, want file inside staging dir", staged.Path)
	}
	content, err := os.ReadFile(staged.Path)
	if err != nil {
		t.Fatalf("reading staged file: %v", err)
	}
	if string(content) != "png-bytes" {
		t.Errorf("staged content = %q, want %q", content, "png-bytes")
	}
}

func TestDownloadToFileTempPrefix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="shot.png"`)
		w.Write([]byte("data"))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, authBasic, "user", "pass", WithHTTPClient(server.Client()))

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)
	os.Chdir(t.TempDir())

	staged, err := client.downloadToFile(context.Background(), server.URL+"/file", "")
	if err != nil {
		t.Fatalf("downloadToFile() error = %v", err)
	}
	if staged.Path != "temp_shot.png" {
		t.Errorf("Path = %q, want %q", staged.Path, "temp_shot.png")
	}
	if _, err := os.Stat("temp_shot.png"); err != nil {
		t.Errorf("staged file missing: %v", err)
	}
}

func TestFilenameFromResponse(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		url         string
		expected    string
	}{
		{"from header", `attachment; filename="photo.jpg"`, "https://host/rest/latest/attachments/5/file", "photo.jpg"},
		{"from url path", "", "https://host/files/image.png", "image.png"},
		{"file segment ignored", "", "https://host/rest/latest/attachments/5/file", "attachment"},
		{"bare host", "", "https://host/", "attachment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.disposition != "" {
				resp.Header.Set("Content-Disposition", tt.disposition)
			}
			result := filenameFromResponse(resp, tt.url)
			if result != tt.expected {
				t.Errorf("filenameFromResponse() = %q, want %q", result, tt.expected)
			}
		})
	}
}
