// Package gdb handles ESRI File Geodatabase archives: extraction from the
// uploaded zip, container inspection, and feature streaming with coordinate
// reprojection. It is the geospatial counterpart of the CSV path and is
// backed by GDAL's vector (OGR) API, the same library stack the statewide
// parcel deliveries are produced with.
package gdb

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// TargetEPSG is the coordinate system every published geometry is expressed
// in: NAD83(HARN) / Wisconsin Transverse Mercator.
const TargetEPSG = 3071

// Extract unpacks a .gdb.zip archive into scratchDir and returns the path of
// the geodatabase directory inside it. When the archive holds more than one
// .gdb directory the first is used and a warning is logged; none is an
// error.
func Extract(zipPath, scratchDir string, log *slog.Logger) (string, error) {
	log.Info("extracting geodatabase archive", "zip", zipPath, "scratch_dir", scratchDir)

	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	if err := unzip(zipPath, scratchDir); err != nil {
		return "", fmt.Errorf("extract %s: %w", zipPath, err)
	}

	var gdbDirs []string
	err := filepath.WalkDir(scratchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".gdb") {
			gdbDirs = append(gdbDirs, path)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan extracted archive: %w", err)
	}

	if len(gdbDirs) == 0 {
		return "", fmt.Errorf("no .gdb directory found in %s", zipPath)
	}
	if len(gdbDirs) > 1 {
		log.Warn("multiple .gdb directories in archive, using first",
			"zip", zipPath, "using", gdbDirs[0], "found", len(gdbDirs))
	}

	log.Info("extracted geodatabase", "gdb_path", gdbDirs[0])
	return gdbDirs[0], nil
}

// unzip expands an archive, refusing entries that would escape dest.
func unzip(zipPath, dest string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extraction dir", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeZipEntry(f, target); err != nil {
			return fmt.Errorf("entry %s: %w", f.Name, err)
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// Cleanup removes an extraction directory. Given the .gdb directory itself
// it removes the parent scratch directory. Calling it on an already-removed
// path is a no-op; cleanup runs on every exit path and must never fail the
// task it is cleaning up after.
func Cleanup(path string, log *slog.Logger) {
	if path == "" {
		return
	}
	if strings.HasSuffix(strings.ToLower(filepath.Base(path)), ".gdb") {
		path = filepath.Dir(path)
	}

	if err := os.RemoveAll(path); err != nil {
		log.Warn("scratch cleanup failed", "path", path, "error", err)
		return
	}
	log.Info("cleaned up scratch directory", "path", path)
}
