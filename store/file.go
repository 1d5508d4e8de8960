package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// FileCollection keeps one entity kind in a single JSON file, id-keyed.
// Writes go through a temp file rename so a crash never leaves a torn file.
type FileCollection[T any] struct {
	path  string
	mu    sync.Mutex
	getID func(T) string
	setID func(T, string) T
}

func NewFileCollection[T any](path string, getID func(T) string, setID func(T, string) T) *FileCollection[T] {
	return &FileCollection[T]{path: path, getID: getID, setID: setID}
}

func (c *FileCollection[T]) load() (map[string]T, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return map[string]T{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := map[string]T{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", c.path, err)
		}
	}
	return entries, nil
}

func (c *FileCollection[T]) save(entries map[string]T) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func (c *FileCollection[T]) Create(ctx context.Context, e T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	entries, err := c.load()
	if err != nil {
		return zero, err
	}
	e = c.setID(e, uuid.NewString())
	entries[c.getID(e)] = e
	if err := c.save(entries); err != nil {
		return zero, err
	}
	return e, nil
}

func (c *FileCollection[T]) Update(ctx context.Context, e T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	entries, err := c.load()
	if err != nil {
		return zero, err
	}
	id := c.getID(e)
	if _, ok := entries[id]; !ok {
		return zero, fmt.Errorf("update %q: %w", id, ErrNotFound)
	}
	entries[id] = e
	if err := c.save(entries); err != nil {
		return zero, err
	}
	return e, nil
}

func (c *FileCollection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.load()
	if err != nil {
		return err
	}
	if _, ok := entries[id]; !ok {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	delete(entries, id)
	return c.save(entries)
}

// NewFileStores wires a file-backed bundle rooted at dir, one JSON file per
// entity kind.
func NewFileStores(dir string) Stores {
	return Stores{
		Meals: NewFileCollection(filepath.Join(dir, "meals.json"),
			func(e MealEntry) string { return e.ID },
			func(e MealEntry, id string) MealEntry { e.ID = id; return e }),
		Symptoms: NewFileCollection(filepath.Join(dir, "symptoms.json"),
			func(e SymptomEntry) string { return e.ID },
			func(e SymptomEntry, id string) SymptomEntry { e.ID = id; return e }),
		Supplements: NewFileCollection(filepath.Join(dir, "supplements.json"),
			func(e SupplementEntry) string { return e.ID },
			func(e SupplementEntry, id string) SupplementEntry { e.ID = id; return e }),
		Sleep: NewFileCollection(filepath.Join(dir, "sleep.json"),
			func(e SleepEntry) string { return e.ID },
			func(e SleepEntry, id string) SleepEntry { e.ID = id; return e }),
		Shopping: NewFileCollection(filepath.Join(dir, "shopping.json"),
			func(e ShoppingEntry) string { return e.ID },
			func(e ShoppingEntry, id string) ShoppingEntry { e.ID = id; return e }),
	}
}
