package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory ConstituentStore ordered by email ascending
type memoryStore struct {
	mu      sync.Mutex
	records map[string]domain.Constituent

	listCalls int
	listHook  func(call int)
	listErr   error
	writeErr  error
	creates   int
	updates   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]domain.Constituent)}
}

func (s *memoryStore) seed(ownerID string, n int, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c-%s-%05d", ownerID, i)
		s.records[id] = domain.Constituent{
			ID:        id,
			OwnerID:   ownerID,
			Email:     fmt.Sprintf("user%05d@example.com", i),
			FirstName: "First",
			LastName:  "Last",
			Address:   "1 Main St",
			City:      "Springfield",
			State:     "IL",
			Zip:       "62701",
			Country:   "US",
			CreatedAt: createdAt,
		}
	}
}

func (s *memoryStore) owned(ownerID string, spec domain.PaginationSpec) []domain.Constituent {
	var out []domain.Constituent
	for _, c := range s.records {
		if c.OwnerID != ownerID {
			continue
		}
		if spec.Search != "" && !strings.Contains(c.Email, spec.Search) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (s *memoryStore) Count(_ context.Context, ownerID string, spec domain.PaginationSpec) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owned(ownerID, spec)), nil
}

func (s *memoryStore) List(_ context.Context, ownerID string, spec domain.PaginationSpec) ([]domain.Constituent, error) {
	s.mu.Lock()
	call := s.listCalls
	s.listCalls++
	hook := s.listHook
	listErr := s.listErr
	all := s.owned(ownerID, spec)
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if listErr != nil {
		return nil, listErr
	}

	start := spec.Offset()
	if start >= len(all) {
		return nil, nil
	}
	end := start + spec.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (s *memoryStore) GetByEmails(_ context.Context, ownerID string, emails []string) ([]domain.Constituent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(emails))
	for _, e := range emails {
		wanted[e] = true
	}

	var out []domain.Constituent
	for _, c := range s.records {
		if c.OwnerID == ownerID && wanted[c.Email] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryStore) CreateMany(_ context.Context, constituents []domain.Constituent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	for _, c := range constituents {
		s.records[c.ID] = c
	}
	s.creates += len(constituents)
	return nil
}

func (s *memoryStore) UpdateMany(_ context.Context, constituents []domain.Constituent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	for _, c := range constituents {
		s.records[c.ID] = c
	}
	s.updates += len(constituents)
	return nil
}

func (s *memoryStore) byEmail(ownerID, email string) (domain.Constituent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.records {
		if c.OwnerID == ownerID && c.Email == email {
			return c, true
		}
	}
	return domain.Constituent{}, false
}

func (s *memoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// recordingPublisher captures job events
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultSpec() domain.PaginationSpec {
	return domain.PaginationSpec{
		Sort:  domain.Sort{Key: "created_at", Order: domain.SortDesc},
		Limit: domain.DefaultPageLimit,
	}
}

func newTestManager(t *testing.T, store ConstituentStore) (*Manager, *recordingPublisher) {
	t.Helper()

	events := &recordingPublisher{}
	m, err := NewManager(&Config{
		Logger:    testLogger(),
		Store:     store,
		Tokens:    NewTokenIssuer("test-secret", nil),
		Events:    events,
		ExportDir: t.TempDir(),
		UploadDir: t.TempDir(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	return m, events
}
