// Package archive detects ZIP containers and walks their data-file entries.
//
// Archives are read fully into memory: zip needs random access to the
// central directory, and the object-store body is a forward-only stream.
// Memory per archive is therefore bounded by the object size.
package archive

import (
	"archive/zip"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Separator joins the archive key and the entry name in an inner path.
const Separator = "::"

var zipMagic = []byte("PK\x03\x04")

// IsArchive reports whether br starts with the ZIP local-file-header magic.
// It only peeks, so br is left positioned at the start of the stream.
func IsArchive(br *bufio.Reader) bool {
	b, err := br.Peek(len(zipMagic))
	if err != nil {
		return false
	}
	return bytes.Equal(b, zipMagic)
}

// InnerPath returns the addressable path of entry name inside archivePath.
func InnerPath(archivePath, name string) string {
	return archivePath + Separator + name
}

// Walk reads the archive from r and calls fn for every non-directory entry
// whose name ends with suffix (case-insensitive), in central-directory order.
// Other entries are skipped silently. An error from fn stops the walk and is
// returned as is.
func Walk(archivePath string, r io.Reader, suffix string, fn func(innerPath string, body io.Reader) error) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("archive %s: read: %w", archivePath, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("archive %s: %w", archivePath, err)
	}

	suffix = strings.ToLower(suffix)
	for _, f := range zr.File {
		if !wanted(f, suffix) {
			continue
		}
		if err := visit(archivePath, f, fn); err != nil {
			return err
		}
	}
	return nil
}

func wanted(f *zip.File, suffix string) bool {
	if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
		return false
	}
	return strings.HasSuffix(strings.ToLower(f.Name), suffix)
}

func visit(archivePath string, f *zip.File, fn func(string, io.Reader) error) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("archive %s: open %s: %w", archivePath, f.Name, err)
	}
	defer rc.Close()
	return fn(InnerPath(archivePath, f.Name), rc)
}
