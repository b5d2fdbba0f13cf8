package fetch

import (
	"archive/zip"
	"bytes"
	"io"

	"github.com/rotisserie/eris"
)

// ArchiveEntry extracts one file from an in-memory ZIP archive. An empty
// name selects the archive's only file; with multiple files the name is
// required.
func ArchiveEntry(data []byte, name string) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: open zip")
	}

	var files []*zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if name == "" || f.Name == name {
			files = append(files, f)
		}
	}

	switch {
	case len(files) == 0 && name != "":
		return nil, eris.Errorf("fetch: %q not found in zip", name)
	case len(files) == 0:
		return nil, eris.New("fetch: empty zip")
	case len(files) > 1 && name == "":
		return nil, eris.Errorf("fetch: zip holds %d files, entry name required", len(files))
	}

	rc, err := files[0].Open()
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: open zip entry %s", files[0].Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := io.ReadAll(io.LimitReader(rc, maxFeedBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read zip entry %s", files[0].Name)
	}
	return out, nil
}
