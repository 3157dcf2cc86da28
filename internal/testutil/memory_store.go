package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
)

type recordKey struct {
	userID    string
	messageID int64
	day       string
}

// MemoryStore is a thread-safe in-memory implementation of
// repository.MessageStore for testing.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[recordKey]domain.Record
	nextID int64

	Now func() time.Time

	InsertErr error
	ListErr   error
	ExistsErr error
	PingErr   error

	InsertCalls int
	ListCalls   int
	Closed      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[recordKey]domain.Record),
		Now:  time.Now,
	}
}

func (m *MemoryStore) Insert(_ context.Context, rec domain.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++
	if m.InsertErr != nil {
		return "", m.InsertErr
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}

	k := recordKey{userID: rec.UserID, messageID: rec.MessageID, day: rec.Day}
	if prev, ok := m.rows[k]; ok {
		rec.ID = prev.ID
	} else {
		m.nextID++
		rec.ID = strconv.FormatInt(m.nextID, 10)
	}
	m.rows[k] = rec
	return rec.ID, nil
}

func (m *MemoryStore) ListByUserDay(_ context.Context, userID, day string) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.collect(func(r domain.Record) bool {
		return r.UserID == userID && r.Day == day
	}), nil
}

func (m *MemoryStore) ListContentByUserDay(ctx context.Context, userID, day string) ([]string, error) {
	recs, err := m.ListByUserDay(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	return domain.Contents(recs), nil
}

func (m *MemoryStore) Exists(_ context.Context, userID, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	for k := range m.rows {
		if k.userID == userID && k.day == day {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListByUserRange(_ context.Context, userID, startDay, endDay string) ([]domain.Record, error) {
	if endDay < startDay {
		return nil, fmt.Errorf("range end %s is before start %s", endDay, startDay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.collect(func(r domain.Record) bool {
		return r.UserID == userID && r.Day >= startDay && r.Day <= endDay
	}), nil
}

func (m *MemoryStore) PruneOlderThan(_ context.Context, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, errors.New("retention days must not be negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.Now().UTC().AddDate(0, 0, -retentionDays)
	var n int64
	for k, r := range m.rows {
		if r.CreatedAt.Before(cutoff) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

func (m *MemoryStore) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MemoryStore) collect(match func(domain.Record) bool) []domain.Record {
	out := make([]domain.Record, 0)
	for _, r := range m.rows {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		a, _ := strconv.ParseInt(out[i].ID, 10, 64)
		b, _ := strconv.ParseInt(out[j].ID, 10, 64)
		return a < b
	})
	return out
}
