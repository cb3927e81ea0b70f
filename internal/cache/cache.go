// Package cache persists conversation histories on disk as gob files.
package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepchat-cli/deepchat/internal/proto"
)

const cacheExt = ".gob"

var errInvalidID = errors.New("invalid id")

// Conversations stores message histories keyed by conversation id.
type Conversations struct {
	dir string
}

// New creates the cache under the given base directory.
func New(baseDir string) (*Conversations, error) {
	dir := filepath.Join(baseDir, "conversations")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Conversations{dir: dir}, nil
}

// Read loads a saved history into messages.
func (c *Conversations) Read(id string, messages *[]proto.Message) error {
	if id == "" {
		return fmt.Errorf("read: %w", errInvalidID)
	}
	file, err := os.Open(c.path(id))
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	defer file.Close() //nolint:errcheck

	if err := gob.NewDecoder(file).Decode(messages); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

// Write saves a history, replacing any previous state for that id.
func (c *Conversations) Write(id string, messages *[]proto.Message) error {
	if id == "" {
		return fmt.Errorf("write: %w", errInvalidID)
	}
	file, err := os.Create(c.path(id))
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	defer file.Close() //nolint:errcheck

	if err := gob.NewEncoder(file).Encode(messages); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Delete removes a saved history.
func (c *Conversations) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("delete: %w", errInvalidID)
	}
	if err := os.Remove(c.path(id)); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (c *Conversations) path(id string) string {
	return filepath.Join(c.dir, id+cacheExt)
}
