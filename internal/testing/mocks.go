package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"place-registry/internal/models"
	errs "place-registry/pkg/errors"
)

// MockGeocoder implements domain.Geocoder for tests.
type MockGeocoder struct {
	Mu    sync.Mutex
	Resp  map[string]models.Location
	Err   map[string]error
	Calls int
}

func NewMockGeocoder() *MockGeocoder {
	return &MockGeocoder{Resp: map[string]models.Location{}, Err: map[string]error{}}
}

func (m *MockGeocoder) Resolve(ctx context.Context, address string) (models.Location, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if err, ok := m.Err[address]; ok {
		return models.Location{}, err
	}
	if loc, ok := m.Resp[address]; ok {
		return loc, nil
	}
	// default: unknown addresses do not resolve
	return models.Location{}, errs.NewGeocoding("mock.Resolve", address,
		"could not find location for the specified address", nil)
}

// MockImageStore implements domain.ImageStore for tests.
type MockImageStore struct {
	Mu        sync.Mutex
	Objects   map[string][]byte
	Deleted   []string
	StoreErr  error
	DeleteErr error
	// Deletes receives every Delete call's ref when non-nil.
	Deletes chan string
	seq     int
}

func NewMockImageStore() *MockImageStore {
	return &MockImageStore{Objects: map[string][]byte{}}
}

func (m *MockImageStore) Store(ctx context.Context, r io.Reader, contentType string) (string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.StoreErr != nil {
		return "", m.StoreErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.seq++
	ref := fmt.Sprintf("uploads/images/mock-%d", m.seq)
	m.Objects[ref] = buf.Bytes()
	return ref, nil
}

func (m *MockImageStore) Delete(ctx context.Context, ref string) error {
	m.Mu.Lock()
	err := m.DeleteErr
	if err == nil {
		delete(m.Objects, ref)
		m.Deleted = append(m.Deleted, ref)
	}
	ch := m.Deletes
	m.Mu.Unlock()
	if ch != nil {
		ch <- ref
	}
	return err
}

// DeletedRefs returns a copy of the refs deleted so far.
func (m *MockImageStore) DeletedRefs() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]string(nil), m.Deleted...)
}
