package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
)

// persistencePollInterval is the cadence of the Subscribe change-detection
// bridge. Badger has no native change feed, so Subscribe polls and compares.
const persistencePollInterval = 1 * time.Second

// Persistence implements the generic collection-addressed document port on
// top of the raw Badger keyspace. Documents are stored as JSON under
// "doc:{collection}:{id}" keys, outside the badgerhold type indexes.
type Persistence struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPersistence creates a new Persistence instance
func NewPersistence(db *BadgerDB, logger arbor.ILogger) interfaces.Persistence {
	return &Persistence{
		db:     db,
		logger: logger,
	}
}

func docKey(collection, id string) []byte {
	return []byte(fmt.Sprintf("doc:%s:%s", collection, id))
}

func collectionPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("doc:%s:", collection))
}

func (p *Persistence) Create(ctx context.Context, collection, id string, doc map[string]interface{}) error {
	if collection == "" || id == "" {
		return fmt.Errorf("collection and id are required")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	return p.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Set(docKey(collection, id), data)
	})
}

func (p *Persistence) Get(ctx context.Context, collection, id string) (map[string]interface{}, bool, error) {
	var doc map[string]interface{}
	found := false

	err := p.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(docKey(collection, id))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, found, nil
}

// Update merges the partial document into the stored one. A missing
// document is an error; Create is the explicit insert path.
func (p *Persistence) Update(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	return p.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		key := docKey(collection, id)
		item, err := txn.Get(key)
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return fmt.Errorf("document not found: %s/%s", collection, id)
			}
			return err
		}

		var doc map[string]interface{}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		}); err != nil {
			return err
		}

		for k, v := range partial {
			doc[k] = v
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Query scans a collection and returns documents matching every filter by
// equality, ordered by the named field ascending. Collections here are
// small (the port backs change bridging, not the primary stores), so the
// full prefix scan is acceptable.
func (p *Persistence) Query(ctx context.Context, collection string, filters map[string]interface{}, orderBy string, limit int) ([]map[string]interface{}, error) {
	var docs []map[string]interface{}

	err := p.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		prefix := collectionPrefix(collection)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var doc map[string]interface{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				continue
			}
			if matchesFilters(doc, filters) {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}

	if orderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			return fmt.Sprintf("%v", docs[i][orderBy]) < fmt.Sprintf("%v", docs[j][orderBy])
		})
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Subscribe bridges document changes into a channel by polling the stored
// bytes and emitting whenever they differ from the previous read. The
// channel closes when ctx is cancelled.
func (p *Persistence) Subscribe(ctx context.Context, collection, id string) (<-chan map[string]interface{}, error) {
	if collection == "" || id == "" {
		return nil, fmt.Errorf("collection and id are required")
	}

	ch := make(chan map[string]interface{}, 8)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(persistencePollInterval)
		defer ticker.Stop()

		var last []byte
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			var current []byte
			err := p.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
				item, err := txn.Get(docKey(collection, id))
				if err != nil {
					if err == badgerdb.ErrKeyNotFound {
						return nil
					}
					return err
				}
				current, err = item.ValueCopy(nil)
				return err
			})
			if err != nil {
				p.logger.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("Subscription poll failed")
				continue
			}

			if current == nil || bytes.Equal(current, last) {
				continue
			}
			last = current

			var doc map[string]interface{}
			if err := json.Unmarshal(current, &doc); err != nil {
				continue
			}

			select {
			case ch <- doc:
			default:
				// Slow subscriber, drop and keep polling
			}
		}
	}()

	return ch, nil
}

func matchesFilters(doc map[string]interface{}, filters map[string]interface{}) bool {
	for k, want := range filters {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}
