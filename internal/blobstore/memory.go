package blobstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type memoryBlob struct {
	name        string
	contentType string
	data        []byte
}

// Memory is an in-process Store used in tests and when MongoDB is not configured.
type Memory struct {
	mu      sync.RWMutex
	blobs   map[string]memoryBlob
	baseURL string
}

func NewMemory(baseURL string) *Memory {
	return &Memory{blobs: make(map[string]memoryBlob), baseURL: strings.TrimRight(baseURL, "/")}
}

func (m *Memory) Put(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")

	m.mu.Lock()
	m.blobs[id] = memoryBlob{name: path, contentType: contentType, data: data}
	m.mu.Unlock()

	return MediaURL(m.baseURL, id), nil
}

func (m *Memory) Open(ctx context.Context, id string) (*Object, error) {
	m.mu.RLock()
	blob, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{
		Body:        io.NopCloser(bytes.NewReader(blob.data)),
		Name:        blob.name,
		ContentType: blob.contentType,
		Size:        int64(len(blob.data)),
	}, nil
}
