// Package store holds the persisted entry records and the narrow per-entity
// CRUD contracts the apply engine commits through. Implementations: JSON file
// collections, S3-backed collections, and in-memory doubles for tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("entry not found")

type MealEntryItem struct {
	Label           string  `json:"label"`
	FoodID          string  `json:"foodId,omitempty"`
	FoodDescription string  `json:"foodDescription,omitempty"`
	Servings        float64 `json:"servings"`
	Grams           float64 `json:"grams,omitempty"`
	Calories        float64 `json:"calories,omitempty"`
	ProteinG        float64 `json:"proteinG,omitempty"`
	CarbsG          float64 `json:"carbsG,omitempty"`
	FatG            float64 `json:"fatG,omitempty"`
}

type MealEntry struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	MealType  string          `json:"mealType,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Items     []MealEntryItem `json:"items"`
	CreatedAt time.Time       `json:"createdAt"`
}

type SymptomEntry struct {
	ID          string    `json:"id"`
	SymptomName string    `json:"symptomName"`
	Severity    int       `json:"severity"`
	Date        string    `json:"date,omitempty"`
	Time        string    `json:"time,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type SupplementEntry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Dosage         float64   `json:"dosage"`
	Unit           string    `json:"unit"`
	DoseCount      float64   `json:"doseCount,omitempty"`
	DoseUnit       string    `json:"doseUnit,omitempty"`
	StrengthAmount float64   `json:"strengthAmount,omitempty"`
	StrengthUnit   string    `json:"strengthUnit,omitempty"`
	Date           string    `json:"date,omitempty"`
	Time           string    `json:"time,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type SleepEntry struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Bedtime   string    `json:"bedtime,omitempty"`
	WakeTime  string    `json:"wakeTime,omitempty"`
	Quality   int       `json:"quality"`
	Factors   []string  `json:"factors,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ShoppingEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type MealStore interface {
	Create(ctx context.Context, e MealEntry) (MealEntry, error)
	Update(ctx context.Context, e MealEntry) (MealEntry, error)
	Delete(ctx context.Context, id string) error
}

type SymptomStore interface {
	Create(ctx context.Context, e SymptomEntry) (SymptomEntry, error)
	Update(ctx context.Context, e SymptomEntry) (SymptomEntry, error)
	Delete(ctx context.Context, id string) error
}

type SupplementStore interface {
	Create(ctx context.Context, e SupplementEntry) (SupplementEntry, error)
	Update(ctx context.Context, e SupplementEntry) (SupplementEntry, error)
	Delete(ctx context.Context, id string) error
}

type SleepStore interface {
	Create(ctx context.Context, e SleepEntry) (SleepEntry, error)
	Update(ctx context.Context, e SleepEntry) (SleepEntry, error)
	Delete(ctx context.Context, id string) error
}

type ShoppingStore interface {
	Create(ctx context.Context, e ShoppingEntry) (ShoppingEntry, error)
	Update(ctx context.Context, e ShoppingEntry) (ShoppingEntry, error)
	Delete(ctx context.Context, id string) error
}

// Stores bundles one store per entity kind.
type Stores struct {
	Meals       MealStore
	Symptoms    SymptomStore
	Supplements SupplementStore
	Sleep       SleepStore
	Shopping    ShoppingStore
}

// MemCollection is a simple in-memory implementation for testing. The id/setID
// funcs tell the generic machinery where an entry keeps its identifier.
type MemCollection[T any] struct {
	mu      sync.Mutex
	entries map[string]T
	getID   func(T) string
	setID   func(T, string) T
	err     error // injected failure for tests
}

func NewMemCollection[T any](getID func(T) string, setID func(T, string) T) *MemCollection[T] {
	return &MemCollection[T]{entries: map[string]T{}, getID: getID, setID: setID}
}

// FailWith makes every subsequent call return err.
func (c *MemCollection[T]) FailWith(err error) { c.err = err }

func (c *MemCollection[T]) Create(ctx context.Context, e T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		var zero T
		return zero, c.err
	}
	e = c.setID(e, uuid.NewString())
	c.entries[c.getID(e)] = e
	return e, nil
}

func (c *MemCollection[T]) Update(ctx context.Context, e T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		var zero T
		return zero, c.err
	}
	id := c.getID(e)
	if _, ok := c.entries[id]; !ok {
		var zero T
		return zero, fmt.Errorf("update %q: %w", id, ErrNotFound)
	}
	c.entries[id] = e
	return e, nil
}

func (c *MemCollection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if _, ok := c.entries[id]; !ok {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	delete(c.entries, id)
	return nil
}

// Get is a test helper; the apply engine never reads back.
func (c *MemCollection[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

// Len is a test helper.
func (c *MemCollection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func NewMemMealStore() *MemCollection[MealEntry] {
	return NewMemCollection(
		func(e MealEntry) string { return e.ID },
		func(e MealEntry, id string) MealEntry { e.ID = id; return e },
	)
}

func NewMemSymptomStore() *MemCollection[SymptomEntry] {
	return NewMemCollection(
		func(e SymptomEntry) string { return e.ID },
		func(e SymptomEntry, id string) SymptomEntry { e.ID = id; return e },
	)
}

func NewMemSupplementStore() *MemCollection[SupplementEntry] {
	return NewMemCollection(
		func(e SupplementEntry) string { return e.ID },
		func(e SupplementEntry, id string) SupplementEntry { e.ID = id; return e },
	)
}

func NewMemSleepStore() *MemCollection[SleepEntry] {
	return NewMemCollection(
		func(e SleepEntry) string { return e.ID },
		func(e SleepEntry, id string) SleepEntry { e.ID = id; return e },
	)
}

func NewMemShoppingStore() *MemCollection[ShoppingEntry] {
	return NewMemCollection(
		func(e ShoppingEntry) string { return e.ID },
		func(e ShoppingEntry, id string) ShoppingEntry { e.ID = id; return e },
	)
}

// NewMemStores wires an all-in-memory bundle for tests.
func NewMemStores() Stores {
	return Stores{
		Meals:       NewMemMealStore(),
		Symptoms:    NewMemSymptomStore(),
		Supplements: NewMemSupplementStore(),
		Sleep:       NewMemSleepStore(),
		Shopping:    NewMemShoppingStore(),
	}
}
