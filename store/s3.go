package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Collection keeps one entity kind as a single id-keyed JSON object in S3.
// Last-writer-wins; the apply engine serializes mutations so that is enough.
type S3Collection[T any] struct {
	bucket string
	key    string
	s3     s3API
	mu     sync.Mutex
	getID  func(T) string
	setID  func(T, string) T
}

func NewS3Collection[T any](client s3API, bucket, key string, getID func(T) string, setID func(T, string) T) *S3Collection[T] {
	return &S3Collection[T]{bucket: bucket, key: key, s3: client, getID: getID, setID: setID}
}

func (c *S3Collection[T]) load(ctx context.Context) (map[string]T, error) {
	resp, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return map[string]T{}, nil
		}
		return nil, fmt.Errorf("failed to get %s from S3: %w", c.key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	entries := map[string]T{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", c.key, err)
		}
	}
	return entries, nil
}

func (c *S3Collection[T]) save(ctx context.Context, entries map[string]T) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s to S3: %w", c.key, err)
	}
	return nil
}

func (c *S3Collection[T]) Create(ctx context.Context, e T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	entries, err := c.load(ctx)
	if err != nil {
		return zero, err
	}
	e = c.setID(e, uuid.NewString())
	entries[c.getID(e)] = e
	if err := c.save(ctx, entries); err != nil {
		return zero, err
	}
	return e, nil
}

func (c *S3Collection[T]) Update(ctx context.Context, e T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	entries, err := c.load(ctx)
	if err != nil {
		return zero, err
	}
	id := c.getID(e)
	if _, ok := entries[id]; !ok {
		return zero, fmt.Errorf("update %q: %w", id, ErrNotFound)
	}
	entries[id] = e
	if err := c.save(ctx, entries); err != nil {
		return zero, err
	}
	return e, nil
}

func (c *S3Collection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := entries[id]; !ok {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	delete(entries, id)
	return c.save(ctx, entries)
}

// NewS3Stores wires an S3-backed bundle under the given key prefix.
func NewS3Stores(client *s3.Client, bucket, prefix string) Stores {
	return Stores{
		Meals: NewS3Collection(client, bucket, path.Join(prefix, "meals.json"),
			func(e MealEntry) string { return e.ID },
			func(e MealEntry, id string) MealEntry { e.ID = id; return e }),
		Symptoms: NewS3Collection(client, bucket, path.Join(prefix, "symptoms.json"),
			func(e SymptomEntry) string { return e.ID },
			func(e SymptomEntry, id string) SymptomEntry { e.ID = id; return e }),
		Supplements: NewS3Collection(client, bucket, path.Join(prefix, "supplements.json"),
			func(e SupplementEntry) string { return e.ID },
			func(e SupplementEntry, id string) SupplementEntry { e.ID = id; return e }),
		Sleep: NewS3Collection(client, bucket, path.Join(prefix, "sleep.json"),
			func(e SleepEntry) string { return e.ID },
			func(e SleepEntry, id string) SleepEntry { e.ID = id; return e }),
		Shopping: NewS3Collection(client, bucket, path.Join(prefix, "shopping.json"),
			func(e ShoppingEntry) string { return e.ID },
			func(e ShoppingEntry, id string) ShoppingEntry { e.ID = id; return e }),
	}
}
