package ml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/pkg/models"
)

// SnapshotStore persists the named blobs of a snapshot. Save must be
// atomic: a concurrent or later Load sees either the previous blob set or
// the new one, never a mix.
type SnapshotStore interface {
	Save(ctx context.Context, blobs map[string][]byte) error
	Load(ctx context.Context) (map[string][]byte, error)
	Stat(ctx context.Context) ([]models.SnapshotBlobInfo, error)
	// Generation identifies the blob set a Load would return right now,
	// without reading it. It changes on every Save and returns
	// ErrSnapshotNotFound when nothing was saved yet.
	Generation(ctx context.Context) (string, error)
}

const (
	currentLink      = "current"
	generationPrefix = "gen-"
)

// FileSnapshotStore writes each snapshot into a fresh generation directory
// and publishes it by renaming a symlink over "current". The current and
// previous generations are kept.
type FileSnapshotStore struct {
	dir    string
	logger *logrus.Logger
}

func NewFileSnapshotStore(dir string, logger *logrus.Logger) *FileSnapshotStore {
	return &FileSnapshotStore{dir: dir, logger: logger}
}

func (s *FileSnapshotStore) Save(ctx context.Context, blobs map[string][]byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	gen, err := os.MkdirTemp(s.dir, generationPrefix)
	if err != nil {
		return fmt.Errorf("failed to create snapshot generation: %w", err)
	}

	for _, name := range SnapshotBlobs {
		if err := ctx.Err(); err != nil {
			os.RemoveAll(gen)
			return err
		}
		if err := writeFileSync(filepath.Join(gen, name), blobs[name]); err != nil {
			os.RemoveAll(gen)
			return fmt.Errorf("failed to write snapshot blob %s: %w", name, err)
		}
	}

	previous, _ := os.Readlink(filepath.Join(s.dir, currentLink))

	tmp := filepath.Join(s.dir, currentLink+".tmp-"+filepath.Base(gen))
	if err := os.Symlink(filepath.Base(gen), tmp); err != nil {
		os.RemoveAll(gen)
		return fmt.Errorf("failed to link snapshot generation: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, currentLink)); err != nil {
		os.Remove(tmp)
		os.RemoveAll(gen)
		return fmt.Errorf("failed to publish snapshot generation: %w", err)
	}

	s.prune(filepath.Base(gen), previous)

	s.logger.WithFields(logrus.Fields{
		"dir":        s.dir,
		"generation": filepath.Base(gen),
	}).Info("Model snapshot written")
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *FileSnapshotStore) prune(current, previous string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, generationPrefix) || name == current || name == previous {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			s.logger.WithError(err).WithField("generation", name).Warn("Failed to prune snapshot generation")
		}
	}
}

func (s *FileSnapshotStore) currentDir() (string, error) {
	target, err := os.Readlink(filepath.Join(s.dir, currentLink))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrSnapshotNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve current snapshot: %w", err)
	}
	return filepath.Join(s.dir, target), nil
}

func (s *FileSnapshotStore) Generation(ctx context.Context) (string, error) {
	dir, err := s.currentDir()
	if err != nil {
		return "", err
	}
	return filepath.Base(dir), nil
}

func (s *FileSnapshotStore) Load(ctx context.Context) (map[string][]byte, error) {
	dir, err := s.currentDir()
	if err != nil {
		return nil, err
	}

	blobs := make(map[string][]byte, len(SnapshotBlobs))
	for _, name := range SnapshotBlobs {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot blob %s: %w", name, err)
		}
		blobs[name] = data
	}
	return blobs, nil
}

func (s *FileSnapshotStore) Stat(ctx context.Context) ([]models.SnapshotBlobInfo, error) {
	infos := make([]models.SnapshotBlobInfo, 0, len(SnapshotBlobs))
	dir, err := s.currentDir()
	if errors.Is(err, ErrSnapshotNotFound) {
		for _, name := range SnapshotBlobs {
			infos = append(infos, models.SnapshotBlobInfo{Name: name})
		}
		return infos, nil
	}
	if err != nil {
		return nil, err
	}

	for _, name := range SnapshotBlobs {
		info := models.SnapshotBlobInfo{Name: name}
		if fi, err := os.Stat(filepath.Join(dir, name)); err == nil {
			info.Exists = true
			info.SizeBytes = fi.Size()
			info.ModifiedAt = fi.ModTime()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

const (
	badgerBlobPrefix = "snapshot/"
	badgerSavedAtKey = "snapshot_meta/saved_at"
)

// BadgerSnapshotStore keeps the snapshot blobs in an embedded badger
// database. All blobs are written in a single transaction.
type BadgerSnapshotStore struct {
	db     *badger.DB
	logger *logrus.Logger
}

// OpenBadgerSnapshotStore opens a badger database at dir. An empty dir
// opens an in-memory database.
func OpenBadgerSnapshotStore(dir string, logger *logrus.Logger) (*BadgerSnapshotStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	if logger != nil {
		opts = opts.WithLogger(logger)
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	return &BadgerSnapshotStore{db: db, logger: logger}, nil
}

func (s *BadgerSnapshotStore) Close() error {
	return s.db.Close()
}

func (s *BadgerSnapshotStore) Save(ctx context.Context, blobs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	savedAt, err := time.Now().UTC().MarshalBinary()
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, name := range SnapshotBlobs {
			if err := txn.Set([]byte(badgerBlobPrefix+name), blobs[name]); err != nil {
				return fmt.Errorf("set %s: %w", name, err)
			}
		}
		return txn.Set([]byte(badgerSavedAtKey), savedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to write model snapshot: %w", err)
	}
	return nil
}

// Generation is the commit version of the saved_at key, which every Save
// rewrites in the same transaction as the blobs.
func (s *BadgerSnapshotStore) Generation(ctx context.Context) (string, error) {
	var version uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerSavedAtKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return err
		}
		version = item.Version()
		return nil
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(version, 10), nil
}

func (s *BadgerSnapshotStore) Load(ctx context.Context) (map[string][]byte, error) {
	blobs := make(map[string][]byte, len(SnapshotBlobs))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, name := range SnapshotBlobs {
			item, err := txn.Get([]byte(badgerBlobPrefix + name))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrSnapshotNotFound
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", name, err)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			blobs[name] = data
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blobs, nil
}

func (s *BadgerSnapshotStore) Stat(ctx context.Context) ([]models.SnapshotBlobInfo, error) {
	infos := make([]models.SnapshotBlobInfo, 0, len(SnapshotBlobs))
	err := s.db.View(func(txn *badger.Txn) error {
		var savedAt time.Time
		if item, err := txn.Get([]byte(badgerSavedAtKey)); err == nil {
			_ = item.Value(func(val []byte) error {
				return savedAt.UnmarshalBinary(val)
			})
		}

		for _, name := range SnapshotBlobs {
			info := models.SnapshotBlobInfo{Name: name}
			item, err := txn.Get([]byte(badgerBlobPrefix + name))
			if err == nil {
				info.Exists = true
				info.SizeBytes = item.ValueSize()
				info.ModifiedAt = savedAt
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat model snapshot: %w", err)
	}
	return infos, nil
}
