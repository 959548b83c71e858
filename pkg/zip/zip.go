package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"
)

// Asset is one file placed in an archive.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
	Modified time.Time
}

// WriteAssets streams assets into a zip archive on w. Empty payloads are
// skipped.
func WriteAssets(w io.Writer, assets []Asset) error {
	zw := zip.NewWriter(w)
	for _, asset := range assets {
		if len(asset.Data) == 0 {
			continue
		}
		header := &zip.FileHeader{Name: asset.Filename, Method: zip.Store}
		if !asset.Modified.IsZero() {
			header.Modified = asset.Modified
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", asset.Filename, err)
		}
		if _, err := fw.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	return zw.Close()
}

// ArchiveAssets builds the archive in memory.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := WriteAssets(buf, assets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
