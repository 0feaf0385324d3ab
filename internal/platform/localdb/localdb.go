// Package localdb is the Local Data Store: named collections of JSON records
// kept under prefixed keys of a kvstore.Store, seeded once on first use.
//
// Each collection is stored wholesale as one JSON array. Reads decode the
// whole array; writes replace it. Update serializes read-modify-write cycles
// per collection inside the process and relies on the store's version stamps
// to detect writers in other processes.
package localdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Anup697028/mediwise-chat/internal/platform/kvstore"
)

// DefaultPrefix namespaces every collection key.
const DefaultPrefix = "mediconnect_"

// SchemaVersion is the layout version written by Initialize.
const SchemaVersion = 1

// maxUpdateAttempts bounds optimistic retries when another writer races an
// Update.
const maxUpdateAttempts = 3

const (
	keyInitialized   = "initialized"
	keySchemaVersion = "schemaVersion"
)

// Collection names a persisted array of records.
type Collection string

const (
	Users         Collection = "users"
	Doctors       Collection = "doctors"
	Appointments  Collection = "appointments"
	Consultations Collection = "consultations"
	Prescriptions Collection = "prescriptions"
	Credentials   Collection = "credentials"
)

// AllCollections lists every collection Initialize creates, in seeding order.
var AllCollections = []Collection{Appointments, Consultations, Prescriptions, Users, Credentials, Doctors}

var (
	ErrCorrupt           = errors.New("stored value is not valid JSON")
	ErrUnsupportedSchema = errors.New("stored schema version is newer than supported")
	ErrVersionConflict   = kvstore.ErrVersionConflict
)

// Seed replaces the initial contents of a collection during Initialize.
type Seed struct {
	Collection Collection
	Value      any
}

// Database is the Local Data Store.
type Database struct {
	store  kvstore.Store
	prefix string
	logger zerolog.Logger

	initMu sync.Mutex

	mu    sync.Mutex
	locks map[Collection]*sync.Mutex
}

// New wraps store. An empty prefix falls back to DefaultPrefix.
func New(store kvstore.Store, prefix string, logger zerolog.Logger) *Database {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Database{
		store:  store,
		prefix: prefix,
		logger: logger.With().Str("component", "localdb").Logger(),
		locks:  make(map[Collection]*sync.Mutex),
	}
}

// Key returns the persisted key for c.
func (d *Database) Key(c Collection) string {
	return d.prefix + string(c)
}

// Prefix returns the namespace prefix.
func (d *Database) Prefix() string { return d.prefix }

func (d *Database) lock(c Collection) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[c]
	if !ok {
		l = &sync.Mutex{}
		d.locks[c] = l
	}
	return l
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

// Get decodes collection c into out. It reports false when the collection has
// never been written.
func (d *Database) Get(ctx context.Context, c Collection, out any) (bool, error) {
	return d.GetRaw(ctx, d.Key(c), out)
}

// Save overwrites collection c with value.
func (d *Database) Save(ctx context.Context, c Collection, value any) error {
	return d.SaveRaw(ctx, d.Key(c), value)
}

// Update applies fn to the current encoded contents of c and stores the
// result. An absent collection is left untouched and Update reports false.
// Returning an error from fn aborts the write.
func (d *Database) Update(ctx context.Context, c Collection, fn func(current []byte) ([]byte, error)) (bool, error) {
	l := d.lock(c)
	l.Lock()
	defer l.Unlock()

	key := d.Key(c)
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		raw, version, err := d.store.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read %s: %w", key, err)
		}
		if !json.Valid(raw) {
			return false, fmt.Errorf("%s: %w", key, ErrCorrupt)
		}

		next, err := fn(raw)
		if err != nil {
			return false, err
		}

		_, err = d.store.CompareAndSet(ctx, key, next, version)
		if errors.Is(err, kvstore.ErrVersionConflict) {
			d.logger.Debug().Str("key", key).Int("attempt", attempt).Msg("concurrent write detected, retrying")
			continue
		}
		if err != nil {
			return false, fmt.Errorf("write %s: %w", key, err)
		}
		return true, nil
	}
	return false, fmt.Errorf("update %s: %w", key, ErrVersionConflict)
}

// GetList returns the records of c, or nil when the collection is absent.
func GetList[T any](ctx context.Context, d *Database, c Collection) ([]T, error) {
	var items []T
	if _, err := d.Get(ctx, c, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateList is Update over a typed slice.
func UpdateList[T any](ctx context.Context, d *Database, c Collection, fn func([]T) ([]T, error)) (bool, error) {
	key := d.Key(c)
	return d.Update(ctx, c, func(current []byte) ([]byte, error) {
		var items []T
		if err := json.Unmarshal(current, &items); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", key, ErrCorrupt, err)
		}
		next, err := fn(items)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []T{}
		}
		return json.Marshal(next)
	})
}

// ---------------------------------------------------------------------------
// Raw keys
// ---------------------------------------------------------------------------

// GetRaw decodes the value under an unprefixed key.
func (d *Database) GetRaw(ctx context.Context, key string, out any) (bool, error) {
	raw, _, err := d.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%s: %w: %v", key, ErrCorrupt, err)
	}
	return true, nil
}

// SaveRaw encodes value under an unprefixed key.
func (d *Database) SaveRaw(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := d.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// DeleteRaw removes an unprefixed key.
func (d *Database) DeleteRaw(ctx context.Context, key string) error {
	if err := d.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

// Initialize creates every collection and applies seeds the first time it
// runs against a store. Later calls only bring an older layout up to
// SchemaVersion.
func (d *Database) Initialize(ctx context.Context, seeds ...Seed) error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	var stored int
	hasVersion, err := d.GetRaw(ctx, d.prefix+keySchemaVersion, &stored)
	if err != nil {
		return err
	}
	if hasVersion && stored > SchemaVersion {
		return fmt.Errorf("%w: found %d, support %d", ErrUnsupportedSchema, stored, SchemaVersion)
	}

	var initialized bool
	if _, err := d.GetRaw(ctx, d.prefix+keyInitialized, &initialized); err != nil {
		return err
	}

	if !initialized {
		if err := d.seed(ctx, seeds); err != nil {
			return err
		}
		if err := d.SaveRaw(ctx, d.prefix+keyInitialized, true); err != nil {
			return err
		}
		d.logger.Info().Int("seeds", len(seeds)).Msg("local data store initialized")
	} else if err := d.backfill(ctx); err != nil {
		return err
	}

	if !hasVersion || stored < SchemaVersion {
		if err := d.SaveRaw(ctx, d.prefix+keySchemaVersion, SchemaVersion); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) seed(ctx context.Context, seeds []Seed) error {
	initial := make(map[Collection]any, len(AllCollections))
	for _, c := range AllCollections {
		initial[c] = []struct{}{}
	}
	for _, s := range seeds {
		initial[s.Collection] = s.Value
	}
	for _, c := range AllCollections {
		if err := d.Save(ctx, c, initial[c]); err != nil {
			return err
		}
		delete(initial, c)
	}
	for c, v := range initial {
		if err := d.Save(ctx, c, v); err != nil {
			return err
		}
	}
	return nil
}

// backfill creates collections missing from a store initialized by an older
// layout, without touching existing data.
func (d *Database) backfill(ctx context.Context) error {
	for _, c := range AllCollections {
		_, err := d.store.CompareAndSet(ctx, d.Key(c), []byte("[]"), 0)
		if err == nil {
			d.logger.Info().Str("collection", string(c)).Msg("created missing collection")
			continue
		}
		if !errors.Is(err, kvstore.ErrVersionConflict) {
			return fmt.Errorf("create %s: %w", d.Key(c), err)
		}
	}
	return nil
}

// CollectionInfo summarizes one persisted collection.
type CollectionInfo struct {
	Collection Collection `json:"collection"`
	Key        string     `json:"key"`
	Present    bool       `json:"present"`
	Records    int        `json:"records"`
}

// Describe reports the state of every known collection.
func (d *Database) Describe(ctx context.Context) ([]CollectionInfo, error) {
	out := make([]CollectionInfo, 0, len(AllCollections))
	for _, c := range AllCollections {
		var items []json.RawMessage
		found, err := d.Get(ctx, c, &items)
		if err != nil {
			return nil, err
		}
		out = append(out, CollectionInfo{Collection: c, Key: d.Key(c), Present: found, Records: len(items)})
	}
	return out, nil
}
