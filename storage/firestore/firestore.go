// Package firestore provides a Firestore implementation of entitlement.AttributeStore.
// Each user is one document whose "attributes" map holds the profile attributes.
package firestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

const attributesField = "attributes"

// Store implements entitlement.AttributeStore, entitlement.Incrementer and the
// guest flag store using Google Cloud Firestore
type Store struct {
	client          *firestore.Client
	usersCollection string
	flagsCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// UsersCollection is the Firestore collection for user profiles
	// Default: "arcana_users"
	UsersCollection string

	// FlagsCollection is the Firestore collection for guest flags
	// Default: "arcana_flags"
	FlagsCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.UsersCollection == "" {
		config.UsersCollection = "arcana_users"
	}
	if config.FlagsCollection == "" {
		config.FlagsCollection = "arcana_flags"
	}

	return &Store{
		client:          client,
		usersCollection: config.UsersCollection,
		flagsCollection: config.FlagsCollection,
	}, nil
}

// GetAttributes implements entitlement.AttributeStore
func (s *Store) GetAttributes(ctx context.Context, userID string) (entitlement.Attributes, error) {
	if userID == "" {
		return nil, entitlement.ErrInvalidUserID
	}

	snap, err := s.client.Collection(s.usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return entitlement.Attributes{}, nil
		}
		return nil, fmt.Errorf("failed to get attributes: %w", err)
	}
	return attributesOf(snap), nil
}

// SetAttributes implements entitlement.AttributeStore
func (s *Store) SetAttributes(ctx context.Context, userID string, attrs entitlement.Attributes) error {
	if userID == "" {
		return entitlement.ErrInvalidUserID
	}
	if len(attrs) == 0 {
		return nil
	}

	doc := s.client.Collection(s.usersCollection).Doc(userID)
	if _, err := doc.Set(ctx, attributesPatch(attrs), firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set attributes: %w", err)
	}
	return nil
}

// IncrementAttribute implements entitlement.Incrementer. The read and write run
// in one transaction, which Firestore retries on contention.
func (s *Store) IncrementAttribute(ctx context.Context, userID, name string, delta int) (int, error) {
	if userID == "" {
		return 0, entitlement.ErrInvalidUserID
	}

	doc := s.client.Collection(s.usersCollection).Doc(userID)
	var result int
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		current := 0
		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			if v := attributesOf(snap)[name]; v != "" {
				n, convErr := strconv.Atoi(v)
				if convErr != nil {
					return fmt.Errorf("attribute %s is not numeric: %w", name, convErr)
				}
				current = n
			}
		}

		result = current + delta
		return tx.Set(doc, attributesPatch(entitlement.Attributes{name: strconv.Itoa(result)}), firestore.MergeAll)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", name, err)
	}
	return result, nil
}

// HasFlag reports whether the flag was set
func (s *Store) HasFlag(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Collection(s.flagsCollection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to read flag: %w", err)
	}
	return true, nil
}

// SetFlag sets a flag. Setting an existing flag is a no-op.
func (s *Store) SetFlag(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.flagsCollection).Doc(key).Create(ctx, map[string]interface{}{
		"createdAt": time.Now().UTC(),
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

func attributesPatch(attrs entitlement.Attributes) map[string]interface{} {
	values := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		values[k] = v
	}
	return map[string]interface{}{
		attributesField: values,
		"updatedAt":     time.Now().UTC(),
	}
}

func attributesOf(snap *firestore.DocumentSnapshot) entitlement.Attributes {
	attrs := entitlement.Attributes{}
	if snap == nil || !snap.Exists() {
		return attrs
	}
	raw, _ := snap.Data()[attributesField].(map[string]interface{})
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			attrs[k] = val
		case int64:
			attrs[k] = strconv.FormatInt(val, 10)
		}
	}
	return attrs
}
