package core

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Sentinel errors for server-reported outcomes.
var (
	ErrShareNotFound = errors.New("share not found")
	ErrShareExpired  = errors.New("share has expired")
	ErrLimitReached  = errors.New("download limit reached")
	ErrChecksum      = errors.New("ciphertext checksum mismatch")
)

// Receipt is the server's answer to an upload.
type Receipt struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	ByteSize     int64     `json:"byte_size"`
	Checksum     string    `json:"checksum"`
	MaxDownloads int       `json:"max_downloads"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ShareInfo is the non-sensitive metadata returned by the info endpoint.
type ShareInfo struct {
	ID                 string    `json:"id"`
	DisplayName        string    `json:"display_name"`
	ByteSize           int64     `json:"byte_size"`
	MimeHint           string    `json:"mime_hint"`
	Checksum           string    `json:"checksum"`
	RemainingDownloads int       `json:"remaining_downloads"`
	ExpiresAt          time.Time `json:"expires_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// Client talks to a sealdrop server. It only ever ships ciphertext;
// encryption and decryption stay on the caller's machine.
type Client struct {
	serverURL string
	http      *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		http:      &http.Client{Timeout: 5 * time.Minute},
	}
}

// Upload sends an envelope to the server and returns its receipt.
// The envelope is opaque bytes to the server; name and mime are display
// metadata only.
func (c *Client) Upload(ctx context.Context, name, mime string, envelope []byte, maxDownloads, expiryHours int) (*Receipt, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := fw.Write(envelope); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if maxDownloads > 0 {
		mw.WriteField("max_downloads", strconv.Itoa(maxDownloads))
	}
	if expiryHours > 0 {
		mw.WriteField("expiry_hours", strconv.Itoa(expiryHours))
	}
	if mime != "" {
		mw.WriteField("mime_hint", mime)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeServerError(resp)
	}

	receipt := &Receipt{}
	if err := json.NewDecoder(resp.Body).Decode(receipt); err != nil {
		return nil, fmt.Errorf("failed to decode upload receipt: %w", err)
	}

	// Confirm the ciphertext survived transport before handing out a link.
	if receipt.Checksum != "" && receipt.Checksum != ChecksumBytes(envelope) {
		return nil, ErrChecksum
	}
	return receipt, nil
}

// Download retrieves the envelope for a share identifier, consuming one unit
// of its download allowance. Only the identifier travels in the request URL;
// the key fragment stays local.
func (c *Client) Download(ctx context.Context, id string) (envelope []byte, remaining int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/d/"+id, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, decodeServerError(resp)
	}

	envelope, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read envelope: %w", err)
	}
	remaining, _ = strconv.Atoi(resp.Header.Get("X-Remaining-Downloads"))
	return envelope, remaining, nil
}

// Info fetches share metadata without consuming a download.
func (c *Client) Info(ctx context.Context, id string) (*ShareInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/info/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeServerError(resp)
	}

	info := &ShareInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("failed to decode share info: %w", err)
	}
	return info, nil
}

// Burn asks the server to delete a share. It reports whether this call did
// the deleting; burning an already-gone share is not an error.
func (c *Client) Burn(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.serverURL+"/api/shares/"+id, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, decodeServerError(resp)
	}

	var out struct {
		Deleted bool `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode delete response: %w", err)
	}
	return out.Deleted, nil
}

// ChecksumBytes computes the hex BLAKE2b-256 digest the server reports for
// stored ciphertext.
func ChecksumBytes(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// decodeServerError maps the server's error payloads onto client sentinels.
func decodeServerError(resp *http.Response) error {
	var payload struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrShareNotFound
	case http.StatusGone:
		if payload.Reason == "download_limit_reached" {
			return ErrLimitReached
		}
		return ErrShareExpired
	default:
		if payload.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, payload.Error)
		}
		return fmt.Errorf("server error (%d)", resp.StatusCode)
	}
}
