package naming

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	logging "github.com/ipfs/go-log"
	"go.etcd.io/bbolt"
)

var log = logging.Logger("naming")

// Errors
var (
	ErrEmptyService   = errors.New("empty service name")
	ErrEmptyQualifier = errors.New("empty qualifier")
	ErrEmptyAddress   = errors.New("empty address")
	ErrInvalidName    = errors.New("invalid service or qualifier name")
	ErrNotRegistered  = errors.New("server not registered")
	ErrUnavailable    = errors.New("naming server unavailable")
)

var bucketServers = []byte("servers")

// Entry is one registered server
type Entry struct {
	Service      string    `json:"service"`
	Qualifier    string    `json:"qualifier"`
	Address      string    `json:"address"`
	RegisteredAt time.Time `json:"registeredAt"`
}

func (e Entry) key() []byte {
	return entryKey(e.Service, e.Qualifier)
}

// keys sort by service, then qualifier
func entryKey(service, qualifier string) []byte {
	return []byte(service + "\x00" + qualifier)
}

func validate(service, qualifier string) error {
	if service == "" {
		return ErrEmptyService
	}
	if qualifier == "" {
		return ErrEmptyQualifier
	}
	if strings.ContainsRune(service, 0) || strings.ContainsRune(qualifier, 0) {
		return ErrInvalidName
	}
	return nil
}

// Registry persists (service, qualifier) -> address in a bbolt file
type Registry struct {
	db  *bbolt.DB
	now func() time.Time
}

// OpenRegistry opens or creates the registry database at path
func OpenRegistry(path string) (*Registry, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketServers)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &Registry{db: db, now: time.Now}, nil
}

// Close closes the database
func (r *Registry) Close() error {
	return r.db.Close()
}

// Register records address for service/qualifier, replacing any previous one
func (r *Registry) Register(service, qualifier, address string) error {
	if err := validate(service, qualifier); err != nil {
		return err
	}
	if address == "" {
		return ErrEmptyAddress
	}

	entry := Entry{
		Service:      service,
		Qualifier:    qualifier,
		Address:      address,
		RegisteredAt: r.now().UTC(),
	}
	bs, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketServers).Put(entry.key(), bs)
	}); err != nil {
		return err
	}
	log.Infow("registered server", "service", service, "qualifier", qualifier, "address", address)
	return nil
}

// Lookup returns the address registered for service/qualifier
func (r *Registry) Lookup(service, qualifier string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := r.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketServers).Get(entryKey(service, qualifier))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &entry)
	})
	return entry, found, err
}

// Delete removes the registration for service/qualifier. A non-empty
// address must match the registered one.
func (r *Registry) Delete(service, qualifier, address string) error {
	if err := validate(service, qualifier); err != nil {
		return err
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketServers)
		key := entryKey(service, qualifier)
		raw := b.Get(key)
		if raw == nil {
			return ErrNotRegistered
		}
		if address != "" {
			var entry Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			if entry.Address != address {
				return fmt.Errorf("%w: %s/%s is at %s", ErrNotRegistered, service, qualifier, entry.Address)
			}
		}
		return b.Delete(key)
	})
	if err != nil {
		return err
	}
	log.Infow("deleted server", "service", service, "qualifier", qualifier)
	return nil
}

// List returns every entry of service, or of all services when service is
// empty, sorted by service and qualifier
func (r *Registry) List(service string) ([]Entry, error) {
	var entries []Entry
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketServers).Cursor()

		var k, v []byte
		prefix := []byte(service + "\x00")
		if service == "" {
			k, v = c.First()
		} else {
			k, v = c.Seek(prefix)
		}
		for ; k != nil; k, v = c.Next() {
			if service != "" && !strings.HasPrefix(string(k), string(prefix)) {
				break
			}
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Service != entries[j].Service {
			return entries[i].Service < entries[j].Service
		}
		return entries[i].Qualifier < entries[j].Qualifier
	})
	return entries, nil
}
