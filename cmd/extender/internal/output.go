package internal

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/extender/internal/build"
)

// outputResult writes the built executable to dest and returns the path written.
// If dest ends with ".zip", creates a zip archive holding the executable; otherwise
// installs the executable itself.
func outputResult(res *build.Result, dest string) (string, error) {
	if strings.HasSuffix(dest, ".zip") {
		return dest, zipFile(res.Binary, dest)
	}
	return res.Install(dest)
}

// zipFile creates a zip archive at dest with the single file src, keeping its
// base name and mode.
func zipFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(src)
	header.Method = zip.Deflate

	writer, err := w.CreateHeader(header)
	if err != nil {
		return err
	}
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := io.Copy(writer, file); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}
