package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeServer imitates the server's wire contract closely enough to exercise
// the client: one stored envelope, one remaining download.
func fakeServer(t *testing.T, envelope []byte) (*httptest.Server, *[]string) {
	t.Helper()
	var seenURLs []string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		seenURLs = append(seenURLs, r.URL.String())
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		var buf bytes.Buffer
		buf.ReadFrom(file)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Receipt{
			ID:           "test-id",
			DisplayName:  "doc.pdf",
			ByteSize:     int64(buf.Len()),
			Checksum:     ChecksumBytes(buf.Bytes()),
			MaxDownloads: 1,
			ExpiresAt:    time.Now().Add(24 * time.Hour),
		})
	})
	mux.HandleFunc("GET /d/{id}", func(w http.ResponseWriter, r *http.Request) {
		seenURLs = append(seenURLs, r.URL.String())
		if r.PathValue("id") != "test-id" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "share not found"})
			return
		}
		w.Header().Set("X-Remaining-Downloads", "0")
		w.Write(envelope)
	})
	mux.HandleFunc("GET /api/info/{id}", func(w http.ResponseWriter, r *http.Request) {
		seenURLs = append(seenURLs, r.URL.String())
		json.NewEncoder(w).Encode(ShareInfo{
			ID:          "test-id",
			DisplayName: "doc.pdf",
			ByteSize:    int64(len(envelope)),
			Checksum:    ChecksumBytes(envelope),
		})
	})
	mux.HandleFunc("DELETE /api/shares/{id}", func(w http.ResponseWriter, r *http.Request) {
		seenURLs = append(seenURLs, r.URL.String())
		json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	})

	return httptest.NewServer(mux), &seenURLs
}

func TestClientRoundTrip(t *testing.T) {
	envelope := []byte("opaque ciphertext bytes")
	srv, seen := fakeServer(t, envelope)
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	receipt, err := client.Upload(ctx, "doc.pdf", "application/pdf", envelope, 1, 24)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if receipt.ID != "test-id" {
		t.Errorf("receipt id: got %s", receipt.ID)
	}

	info, err := client.Info(ctx, receipt.ID)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if info.Checksum != ChecksumBytes(envelope) {
		t.Error("info checksum mismatch")
	}

	got, remaining, err := client.Download(ctx, receipt.ID)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if !bytes.Equal(got, envelope) {
		t.Error("downloaded envelope differs")
	}
	if remaining != 0 {
		t.Errorf("remaining: got %d, want 0", remaining)
	}

	deleted, err := client.Burn(ctx, receipt.ID)
	if err != nil {
		t.Fatalf("burn failed: %v", err)
	}
	if !deleted {
		t.Error("expected deleted=true")
	}

	// The key fragment must never appear in anything sent to the server.
	for _, u := range *seen {
		if strings.Contains(u, "#") {
			t.Errorf("request URL carries a fragment: %s", u)
		}
	}
}

func TestClientErrorMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /d/gone-expired", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		json.NewEncoder(w).Encode(map[string]string{"error": "share has expired", "reason": "expired"})
	})
	mux.HandleFunc("GET /d/gone-limit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		json.NewEncoder(w).Encode(map[string]string{"error": "share download limit reached", "reason": "download_limit_reached"})
	})
	mux.HandleFunc("GET /d/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "share not found"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	tests := []struct {
		id   string
		want error
	}{
		{"missing", ErrShareNotFound},
		{"gone-expired", ErrShareExpired},
		{"gone-limit", ErrLimitReached},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, _, err := client.Download(ctx, tt.id)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}
