package core

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Payload is the plaintext handed to the envelope cipher: either the raw
// bytes of a single file, or a zip archive bundling several paths.
type Payload struct {
	Name     string
	Data     []byte
	Archived bool
}

// PreparePayload flattens the requested paths into a single payload.
// One regular file is sent as-is under its own name; a directory, or more
// than one path, is bundled into a zip archive first so the recipient
// always receives exactly one object.
func PreparePayload(paths []string) (*Payload, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths provided")
	}

	if len(paths) == 1 {
		info, err := os.Stat(paths[0])
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", paths[0], err)
		}
		if !info.IsDir() {
			data, err := os.ReadFile(paths[0])
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", paths[0], err)
			}
			return &Payload{Name: filepath.Base(paths[0]), Data: data}, nil
		}
	}

	data, err := zipPaths(paths)
	if err != nil {
		return nil, err
	}
	return &Payload{Name: archiveName(paths), Data: data, Archived: true}, nil
}

// archiveName picks the display name for a bundled payload: a lone
// directory keeps its own name, anything else gets a timestamped one.
func archiveName(paths []string) string {
	if len(paths) == 1 {
		return filepath.Base(filepath.Clean(paths[0])) + ".zip"
	}
	return fmt.Sprintf("bundle_%s.zip", time.Now().Format("2006_01_02_150405"))
}

func zipPaths(paths []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, p := range paths {
		p = filepath.Clean(p)
		info, err := os.Stat(p)
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}

		if info.IsDir() {
			err = addDirToZip(zw, p)
		} else {
			err = addFileToZip(zw, p, filepath.Base(p))
		}
		if err != nil {
			zw.Close()
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// addDirToZip walks the directory and stores every regular file under an
// archive path rooted at the directory's own base name.
func addDirToZip(zw *zip.Writer, dirPath string) error {
	base := filepath.Base(dirPath)

	return filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dirPath, p)
		if err != nil {
			return err
		}
		return addFileToZip(zw, p, filepath.ToSlash(filepath.Join(base, rel)))
	})
}

func addFileToZip(zw *zip.Writer, srcPath, archivePath string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", srcPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = archivePath
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}

	return nil
}
