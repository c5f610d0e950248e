// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package journal persists manager events for off-chain consumers.
// Sinks implement the manager's EventSink contract; emission failures
// are the caller's to log, never to act on.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/luxfi/alm/manager"
)

// record is the envelope written around every event.
type record struct {
	Timestamp int64         `json:"ts"`
	Type      string        `json:"type"`
	Event     manager.Event `json:"event"`
}

// JSONL appends one JSON object per event to a file.
type JSONL struct {
	path string
	mu   sync.Mutex

	// Clock, swappable in tests
	now func() time.Time
}

var _ manager.EventSink = (*JSONL)(nil)

// NewJSONL creates a journal writing to path. The file and its
// directory are created on first emit.
func NewJSONL(path string) (*JSONL, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	return &JSONL{path: path, now: time.Now}, nil
}

// Emit appends the event as one JSON line.
func (j *JSONL) Emit(ctx context.Context, ev manager.Event) error {
	line, err := json.Marshal(record{
		Timestamp: j.now().Unix(),
		Type:      ev.Type(),
		Event:     ev,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}
