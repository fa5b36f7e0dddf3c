// Package localstore persists the collaborative maps on the local device,
// independent of access state and remote sync.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const (
	checkedFile  = "checkedMap.json"
	commentsFile = "commentsMap.json"
)

// FileStore keeps each map in its own JSON file under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: strings.TrimSpace(dir)}
}

// LoadChecked returns the stored checked map. Missing or malformed files
// yield an empty map.
func (s *FileStore) LoadChecked() map[string]bool {
	out := map[string]bool{}
	s.load(checkedFile, &out)
	if out == nil {
		out = map[string]bool{}
	}
	return out
}

// LoadComments returns the stored comments map. Missing or malformed
// files yield an empty map.
func (s *FileStore) LoadComments() map[string]string {
	out := map[string]string{}
	s.load(commentsFile, &out)
	if out == nil {
		out = map[string]string{}
	}
	return out
}

func (s *FileStore) SaveChecked(m map[string]bool) error {
	return s.save(checkedFile, m)
}

func (s *FileStore) SaveComments(m map[string]string) error {
	return s.save(commentsFile, m)
}

func (s *FileStore) load(name string, target any) {
	if s == nil || s.Dir == "" {
		return
	}
	path := filepath.Join(s.Dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("localstore: read %s: %v", path, err)
		}
		return
	}
	if err := json.Unmarshal(data, target); err != nil {
		log.Printf("localstore: ignoring malformed %s: %v", path, err)
		switch v := target.(type) {
		case *map[string]bool:
			*v = map[string]bool{}
		case *map[string]string:
			*v = map[string]string{}
		}
	}
}

func (s *FileStore) save(name string, value any) error {
	if s == nil || s.Dir == "" {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.Dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// writeFileAtomic writes to a uniquely named temp file, fsyncs, then
// renames over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
