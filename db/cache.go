package db

import (
	"strings"

	"github.com/tidwall/buntdb"
)

// Cache is an in-process, optionally-persistent key/value snapshot for
// read-mostly lookups layered over the relational store. It is a
// collection##key addressing scheme over buntdb with an every-second
// fsync policy: a named, swappable cache a package can mount in front of
// its own sqlite tables. No other package in this module opens one: the
// gazetteer keeps its indices in its own maps and resumeinv does no I/O.
//
// Cache is not the system of record: every value here is reconstructible
// from the sqlite tables in db/schema.go. Passing "" as path keeps the
// cache in memory only.
type Cache struct {
	driver *buntdb.DB
}

const (
	autoShrinkSize = 1 << 20 // 1 MiB
	collectionSepa = "##"
)

func OpenCache(path string) (*Cache, error) {
	if path == "" {
		path = ":memory:"
	}
	driver, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	driver.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkMinSize:    autoShrinkSize,
		AutoShrinkPercentage: 50,
	})
	return &Cache{driver: driver}, nil
}

func makeCacheKey(collection, key string) string {
	if strings.HasSuffix(collection, collectionSepa) {
		return collection + key
	}
	return collection + collectionSepa + key
}

func (c *Cache) Close() error { return c.driver.Close() }

func (c *Cache) Set(collection, key, value string) error {
	name := makeCacheKey(collection, key)
	return c.driver.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(name, value, nil)
		return err
	})
}

func (c *Cache) Get(collection, key string) (string, error) {
	name := makeCacheKey(collection, key)
	var value string
	err := c.driver.View(func(tx *buntdb.Tx) error {
		var err error
		value, err = tx.Get(name)
		return err
	})
	if err == buntdb.ErrNotFound {
		return "", NewErrNotFound(collection, key)
	}
	return value, err
}

// List returns every value in collection whose key matches pattern
// (buntdb glob syntax; a bare prefix is treated as prefix*).
func (c *Cache) List(collection, pattern string) (map[string]string, error) {
	if !strings.ContainsAny(pattern, "*?") {
		pattern += "*"
	}
	filter := makeCacheKey(collection, pattern)
	out := make(map[string]string)
	err := c.driver.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(filter, func(key, value string) bool {
			out[key] = value
			return true
		})
	})
	return out, err
}

func (c *Cache) Delete(collection, key string) error {
	name := makeCacheKey(collection, key)
	err := c.driver.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(name)
		return err
	})
	if err == buntdb.ErrNotFound {
		return nil
	}
	return err
}

func (c *Cache) DeleteCollection(collection string) error {
	keys, err := c.List(collection, "")
	if err != nil || len(keys) == 0 {
		return err
	}
	return c.driver.Update(func(tx *buntdb.Tx) error {
		for k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}
