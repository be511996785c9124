package invoice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidDocumentName is returned for document names that could escape the storage directory
var ErrInvalidDocumentName = errors.New("invalid document name")

// DocumentStore stores the source documents invoices were scanned from
type DocumentStore interface {
	// Save stores data under name and returns the stored name
	Save(name string, data []byte) (string, error)

	// Get retrieves a stored document
	Get(name string) ([]byte, error)

	// Delete removes a stored document
	Delete(name string) error
}

// LocalDocuments implements DocumentStore on the local filesystem
type LocalDocuments struct {
	basePath string
}

// NewLocalDocuments creates basePath if needed
func NewLocalDocuments(basePath string) (*LocalDocuments, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating document directory: %w", err)
	}
	return &LocalDocuments{basePath: basePath}, nil
}

func (l *LocalDocuments) path(name string) (string, error) {
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocumentName, name)
	}
	return filepath.Join(l.basePath, name), nil
}

// Save writes a document to disk
func (l *LocalDocuments) Save(name string, data []byte) (string, error) {
	path, err := l.path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return name, nil
}

// Get reads a document from disk
func (l *LocalDocuments) Get(name string) ([]byte, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return data, nil
}

// Delete removes a document from disk
func (l *LocalDocuments) Delete(name string) error {
	path, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}
