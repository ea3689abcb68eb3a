package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"sealdrop/internal/core"
)

const usage = `sealdrop - zero-knowledge ephemeral file sharing

Usage:
  sealdrop send [-server URL] [-downloads N] [-expiry HOURS] <path> [path...]
  sealdrop get [-o PATH] <share-link>
  sealdrop info <share-link>
  sealdrop burn <share-link>

The share link carries the decryption key in its #fragment. The fragment is
never sent to the server; anyone holding the full link can decrypt, the
server never can.`

func main() {
	cmd, err := core.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s\n", err, usage)
		os.Exit(1)
	}

	ctx := context.Background()

	switch cmd.Name {
	case "send":
		err = runSend(ctx, cmd)
	case "get":
		err = runGet(ctx, cmd)
	case "info":
		err = runInfo(ctx, cmd)
	case "burn":
		err = runBurn(ctx, cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runSend encrypts the payload locally, uploads the envelope, and prints
// the share link. Plaintext and key never leave this machine except through
// the link the user chooses to pass on. Directories and multi-path sends
// are bundled into a single zip archive before sealing.
func runSend(ctx context.Context, cmd *core.Command) error {
	payload, err := core.PreparePayload(cmd.Paths)
	if err != nil {
		return err
	}

	key, err := core.GenerateKey()
	if err != nil {
		return err
	}

	envelope, err := core.Encrypt(payload.Data, key)
	if err != nil {
		return err
	}

	mimeHint := "application/zip"
	if !payload.Archived {
		mimeHint = mime.TypeByExtension(filepath.Ext(payload.Name))
	}

	client := core.NewClient(cmd.ServerURL)
	receipt, err := client.Upload(ctx, payload.Name, mimeHint, envelope, cmd.MaxDownloads, cmd.ExpiryHours)
	if err != nil {
		return err
	}

	link := core.BuildShareLink(cmd.ServerURL, receipt.ID, key)

	fmt.Printf("Sealed %s (%d bytes plaintext, %d bytes sealed)\n", payload.Name, len(payload.Data), receipt.ByteSize)
	fmt.Printf("Downloads: %d, expires: %s\n\n", receipt.MaxDownloads, receipt.ExpiresAt.Local().Format("2006-01-02 15:04"))
	fmt.Println(link)
	return nil
}

// runGet downloads an envelope, verifies its checksum, decrypts it with the
// key from the link fragment, and writes the plaintext to disk.
func runGet(ctx context.Context, cmd *core.Command) error {
	link, err := core.ParseShareLink(cmd.Link)
	if err != nil {
		return err
	}

	client := core.NewClient(link.ServerURL)

	info, err := client.Info(ctx, link.ID)
	if err != nil {
		return err
	}

	envelope, remaining, err := client.Download(ctx, link.ID)
	if err != nil {
		return err
	}

	if info.Checksum != "" && core.ChecksumBytes(envelope) != info.Checksum {
		return core.ErrChecksum
	}

	plaintext, err := core.Decrypt(envelope, link.Key)
	if err != nil {
		return err
	}

	out := cmd.OutputPath
	if out == "" {
		out = filepath.Base(info.DisplayName)
	}
	if err := os.WriteFile(out, plaintext, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Wrote %s (%d bytes, %d downloads remaining)\n", out, len(plaintext), remaining)
	return nil
}

func runInfo(ctx context.Context, cmd *core.Command) error {
	link, err := core.ParseShareLocation(cmd.Link)
	if err != nil {
		return err
	}

	info, err := core.NewClient(link.ServerURL).Info(ctx, link.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Name:      %s\n", info.DisplayName)
	fmt.Printf("Size:      %d bytes (sealed)\n", info.ByteSize)
	fmt.Printf("Type:      %s\n", info.MimeHint)
	fmt.Printf("Remaining: %d downloads\n", info.RemainingDownloads)
	fmt.Printf("Expires:   %s\n", info.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func runBurn(ctx context.Context, cmd *core.Command) error {
	link, err := core.ParseShareLocation(cmd.Link)
	if err != nil {
		return err
	}

	deleted, err := core.NewClient(link.ServerURL).Burn(ctx, link.ID)
	if err != nil {
		return err
	}

	if deleted {
		fmt.Println("Share burned.")
	} else {
		fmt.Println("Share was already gone.")
	}
	return nil
}
