// Package cache keeps parsed SVD devices keyed by document content, so large
// vendor files are only decoded once per parser configuration.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"svdtools/internal/svd"
)

// Store is a byte-oriented cache tier.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type Stats struct {
	MemoryHits uint64
	TierHits   uint64
	Misses     uint64
	TierErrors uint64
}

// Devices is an in-process LRU in front of zero or more slower tiers. Tier
// failures are logged and treated as misses.
type Devices struct {
	mem   *lru.Cache[string, *svd.Device]
	tiers []Store

	memoryHits atomic.Uint64
	tierHits   atomic.Uint64
	misses     atomic.Uint64
	tierErrors atomic.Uint64
}

func NewDevices(size int, tiers ...Store) (*Devices, error) {
	if size <= 0 {
		size = 128
	}
	mem, err := lru.New[string, *svd.Device](size)
	if err != nil {
		return nil, err
	}
	d := &Devices{mem: mem}
	for _, t := range tiers {
		if t != nil {
			d.tiers = append(d.tiers, t)
		}
	}
	return d, nil
}

// Key derives the cache key of a document parsed with the given parser
// fingerprint.
func Key(content []byte, fingerprint string) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks key up in memory, then in each tier in order. A tier hit is
// copied into the faster tiers.
func (d *Devices) Get(ctx context.Context, key string) (*svd.Device, bool) {
	if dev, ok := d.mem.Get(key); ok {
		d.memoryHits.Add(1)
		return dev, true
	}
	for i, t := range d.tiers {
		raw, ok, err := t.Get(ctx, key)
		if err != nil {
			d.tierErrors.Add(1)
			log.Printf("cache: tier %d get %s: %v", i, key, err)
			continue
		}
		if !ok {
			continue
		}
		var dev svd.Device
		if err := json.Unmarshal(raw, &dev); err != nil {
			d.tierErrors.Add(1)
			log.Printf("cache: tier %d decode %s: %v", i, key, err)
			continue
		}
		if dev.Interrupts == nil {
			dev.Interrupts = svd.Table{}
		}
		d.tierHits.Add(1)
		d.mem.Add(key, &dev)
		d.setTiers(ctx, key, raw, d.tiers[:i])
		return &dev, true
	}
	d.misses.Add(1)
	return nil, false
}

// Put stores dev in every tier.
func (d *Devices) Put(ctx context.Context, key string, dev *svd.Device) {
	d.mem.Add(key, dev)
	if len(d.tiers) == 0 {
		return
	}
	raw, err := json.Marshal(dev)
	if err != nil {
		log.Printf("cache: encode %s: %v", key, err)
		return
	}
	d.setTiers(ctx, key, raw, d.tiers)
}

// Parse returns the cached device for content or parses and caches it.
// Parse failures are never cached.
func (d *Devices) Parse(ctx context.Context, p *svd.Parser, content []byte) (*svd.Device, error) {
	key := Key(content, p.Fingerprint())
	if dev, ok := d.Get(ctx, key); ok {
		return dev, nil
	}
	dev, err := p.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	d.Put(ctx, key, dev)
	return dev, nil
}

func (d *Devices) Stats() Stats {
	return Stats{
		MemoryHits: d.memoryHits.Load(),
		TierHits:   d.tierHits.Load(),
		Misses:     d.misses.Load(),
		TierErrors: d.tierErrors.Load(),
	}
}

func (d *Devices) setTiers(ctx context.Context, key string, raw []byte, tiers []Store) {
	for i, t := range tiers {
		if err := t.Set(ctx, key, raw); err != nil {
			d.tierErrors.Add(1)
			log.Printf("cache: tier %d set %s: %v", i, key, err)
		}
	}
}
