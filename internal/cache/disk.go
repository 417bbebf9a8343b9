package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

type DiskConfig struct {
	Root string
	// IndexFile is relative to Root; "index.json" when empty.
	IndexFile  string
	MaxEntries int
	// MaxBytes caps the summed size of stored values; 0 disables the cap.
	MaxBytes int64
	TTL      time.Duration
}

const diskIndexVersion = 1

type diskRecord struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	StoredAt   time.Time `json:"stored_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

type diskIndex struct {
	Version int          `json:"version"`
	Devices []diskRecord `json:"devices"`
}

// DiskStore keeps encoded devices as files under Root/objects, sharded by the
// first byte of the hashed key, and a JSON index of expiry and last access
// times. Entries past their TTL are dropped on access; the least recently
// used ones are evicted once MaxEntries or MaxBytes is exceeded.
type DiskStore struct {
	mu sync.Mutex

	objects   string
	indexPath string
	cfg       DiskConfig

	size    int64
	records map[string]diskRecord
}

func NewDiskStore(cfg DiskConfig) (*DiskStore, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, errors.New("cache: disk root is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 256
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if strings.TrimSpace(cfg.IndexFile) == "" {
		cfg.IndexFile = "index.json"
	}

	s := &DiskStore{
		objects:   filepath.Join(root, "objects"),
		indexPath: filepath.Join(root, cfg.IndexFile),
		cfg:       cfg,
		records:   map[string]diskRecord{},
	}
	if err := os.MkdirAll(s.objects, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", s.objects, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadIndexLocked(); err != nil {
		return nil, err
	}
	s.sweepLocked(time.Now())
	if err := s.saveIndexLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DiskStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	now := time.Now()
	if !now.Before(rec.ExpiresAt) {
		s.dropLocked(rec)
		return nil, false, s.saveIndexLocked()
	}
	raw, err := os.ReadFile(s.objectPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		s.dropLocked(rec)
		return nil, false, s.saveIndexLocked()
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: read %s: %w", key, err)
	}
	rec.AccessedAt = now
	s.records[key] = rec
	return raw, true, s.saveIndexLocked()
}

func (s *DiskStore) Set(_ context.Context, key string, value []byte) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.objectPath(key), value); err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	if old, ok := s.records[key]; ok {
		s.size -= old.Size
	}
	now := time.Now()
	s.records[key] = diskRecord{
		Key:        key,
		Size:       int64(len(value)),
		StoredAt:   now,
		ExpiresAt:  now.Add(s.cfg.TTL),
		AccessedAt: now,
	}
	s.size += int64(len(value))

	s.sweepLocked(now)
	return s.saveIndexLocked()
}

// Len reports the number of live entries.
func (s *DiskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *DiskStore) objectPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(s.objects, name[:2], name+".json")
}

func (s *DiskStore) loadIndexLocked() error {
	raw, err := os.ReadFile(s.indexPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: read index: %w", err)
	}
	var idx diskIndex
	if err := json.Unmarshal(raw, &idx); err != nil || idx.Version != diskIndexVersion {
		// unreadable or foreign index: start cold
		return nil
	}
	for _, rec := range idx.Devices {
		if rec.Key == "" {
			continue
		}
		if old, ok := s.records[rec.Key]; ok {
			s.size -= old.Size
		}
		s.records[rec.Key] = rec
		s.size += rec.Size
	}
	return nil
}

// sweepLocked drops expired records and records whose object file is gone,
// then evicts by last access until the store is within its limits.
func (s *DiskStore) sweepLocked(now time.Time) {
	for _, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			s.dropLocked(rec)
			continue
		}
		if _, err := os.Stat(s.objectPath(rec.Key)); errors.Is(err, fs.ErrNotExist) {
			s.dropLocked(rec)
		}
	}
	if !s.overLimitLocked() {
		return
	}
	byAccess := slices.SortedFunc(maps.Values(s.records), func(a, b diskRecord) int {
		if c := a.AccessedAt.Compare(b.AccessedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	for _, rec := range byAccess {
		if !s.overLimitLocked() {
			break
		}
		s.dropLocked(rec)
	}
}

func (s *DiskStore) overLimitLocked() bool {
	if len(s.records) == 0 {
		return false
	}
	return len(s.records) > s.cfg.MaxEntries || (s.cfg.MaxBytes > 0 && s.size > s.cfg.MaxBytes)
}

func (s *DiskStore) dropLocked(rec diskRecord) {
	delete(s.records, rec.Key)
	s.size = max(s.size-rec.Size, 0)
	_ = os.Remove(s.objectPath(rec.Key))
}

func (s *DiskStore) saveIndexLocked() error {
	idx := diskIndex{Version: diskIndexVersion, Devices: make([]diskRecord, 0, len(s.records))}
	for _, key := range slices.Sorted(maps.Keys(s.records)) {
		idx.Devices = append(idx.Devices, s.records[key])
	}
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(s.indexPath, raw); err != nil {
		return fmt.Errorf("cache: write index: %w", err)
	}
	return nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("cache: key is required")
	}
	return key, nil
}

// writeAtomic replaces path so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
