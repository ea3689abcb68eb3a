package database

import "time"

// Share is the server-side record for one stored envelope. The blob it
// references is ciphertext the server cannot read; every field here is
// lifecycle or display metadata.
type Share struct {
	ID             string
	BlobRef        string // storage key of the ciphertext blob
	DisplayName    string
	ByteSize       int64
	MimeHint       string
	Checksum       string // hex BLAKE2b-256 of the stored ciphertext
	MaxDownloads   int
	DownloadCount  int
	ExpiresAt      time.Time
	Deleted        bool
	DeletedAt      *time.Time
	LastAccessedAt *time.Time
	CreatedAt      time.Time
}

// Deliverable reports whether the share can still serve a download at the
// given instant.
func (s *Share) Deliverable(now time.Time) bool {
	return !s.Deleted && now.Before(s.ExpiresAt) && s.DownloadCount < s.MaxDownloads
}

// RemainingDownloads returns how many downloads are left, never negative.
func (s *Share) RemainingDownloads() int {
	if s.DownloadCount >= s.MaxDownloads {
		return 0
	}
	return s.MaxDownloads - s.DownloadCount
}

// Stats holds aggregate server statistics.
type Stats struct {
	ActiveShares  int64
	DeletedShares int64
	TotalShares   int64
	ActiveBytes   int64
	LastUploadAt  *time.Time
}
