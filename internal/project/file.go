package project

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// SaveFile writes s to path. The file is replaced atomically, so a failed
// save leaves the previous version intact.
func SaveFile(path string, s timeline.Snapshot) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return editerr.IO(fmt.Sprintf("cannot save project to %s", path), err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := Encode(w, s); err != nil {
		tmp.Close()
		return editerr.IO("cannot encode project", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return editerr.IO(fmt.Sprintf("cannot write %s", path), err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return editerr.IO(fmt.Sprintf("cannot write %s", path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return editerr.IO(fmt.Sprintf("cannot write %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		return editerr.IO(fmt.Sprintf("cannot write %s", path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return editerr.IO(fmt.Sprintf("cannot save project to %s", path), err)
	}
	return nil
}

// LoadFile reads and decodes the project at path.
func LoadFile(path string) (timeline.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return timeline.Snapshot{}, editerr.IO(fmt.Sprintf("cannot open project %s", path), err)
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}
