package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// executableMode is the permission of installed files (rwxr-xr-x)
const executableMode os.FileMode = 0755

// Install writes content to dir/name. The data goes to a temporary file
// in dir first and is renamed into place, so an interrupted install never
// leaves a partial executable behind. Returns the installed path.
func Install(dir, name string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: create output directory: %v", ErrFileSystem, err)
	}

	dest := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", ErrFileSystem, err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write %s: %v", ErrFileSystem, tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: sync %s: %v", ErrFileSystem, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %v", ErrFileSystem, tmpPath, err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, executableMode); err != nil {
			return "", fmt.Errorf("%w: set executable: %v", ErrFileSystem, err)
		}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("%w: rename into %s: %v", ErrFileSystem, dest, err)
	}

	committed = true
	return dest, nil
}
