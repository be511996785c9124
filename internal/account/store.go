package account

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"
)

const bucketName = "users"

// Store defines the user lookups needed to sign in
type Store interface {
	// GetUser retrieves a user by username
	GetUser(username string) (*User, error)

	// Authenticate returns the user when password matches
	Authenticate(username, password string) (*User, error)
}

// BoltStore implements Store using a bbolt bucket
type BoltStore struct {
	db   *bbolt.DB
	cost int
}

// NewBoltStore creates the users bucket on db if needed. The caller keeps ownership of db.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating users bucket: %w", err)
	}
	return &BoltStore{db: db, cost: bcrypt.DefaultCost}, nil
}

// NewBoltStoreWithCost is NewBoltStore with a custom bcrypt cost, for fast tests
func NewBoltStoreWithCost(db *bbolt.DB, cost int) (*BoltStore, error) {
	s, err := NewBoltStore(db)
	if err != nil {
		return nil, err
	}
	s.cost = cost
	return s, nil
}

// PutUser creates or replaces a user with the given password
func (s *BoltStore) PutUser(username, password string, role Role) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user := &User{Username: username, Role: role, PasswordHash: hash}

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(username), data)
	})
}

// GetUser retrieves a user by username
func (s *BoltStore) GetUser(username string) (*User, error) {
	var user *User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(username))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks password against the stored hash
func (s *BoltStore) Authenticate(username, password string) (*User, error) {
	user, err := s.GetUser(username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// EnsureUsers creates the seeded users that do not exist yet and returns how many were added
func (s *BoltStore) EnsureUsers(seeds []Seed) (int, error) {
	added := 0
	for _, seed := range seeds {
		_, err := s.GetUser(seed.Username)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrUserNotFound) {
			return added, fmt.Errorf("looking up %s: %w", seed.Username, err)
		}
		if err := s.PutUser(seed.Username, seed.Password, seed.Role); err != nil {
			return added, fmt.Errorf("creating %s: %w", seed.Username, err)
		}
		added++
	}
	return added, nil
}
