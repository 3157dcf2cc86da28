package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
)

// MessageStore is the durable home of chat message records, partitioned by
// user and calendar day. Reads within a partition are ordered by created_at.
type MessageStore interface {
	Insert(ctx context.Context, rec domain.Record) (string, error)
	ListByUserDay(ctx context.Context, userID, day string) ([]domain.Record, error)
	ListContentByUserDay(ctx context.Context, userID, day string) ([]string, error)
	Exists(ctx context.Context, userID, day string) (bool, error)
	ListByUserRange(ctx context.Context, userID, startDay, endDay string) ([]domain.Record, error)
	PruneOlderThan(ctx context.Context, retentionDays int) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// Clock returns the current time. Stores take one so pruning is testable.
type Clock func() time.Time

func validatePartition(userID, day string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id must not be empty")
	}
	if _, err := domain.ParseDay(day); err != nil {
		return err
	}
	return nil
}

func validateRange(userID, startDay, endDay string) error {
	if err := validatePartition(userID, startDay); err != nil {
		return err
	}
	if _, err := domain.ParseDay(endDay); err != nil {
		return err
	}
	if endDay < startDay {
		return fmt.Errorf("range end %s is before start %s", endDay, startDay)
	}
	return nil
}

// pruneCutoff returns the instant before which records are deleted.
func pruneCutoff(now time.Time, retentionDays int) (time.Time, error) {
	if retentionDays < 0 {
		return time.Time{}, fmt.Errorf("retention days must not be negative, got %d", retentionDays)
	}
	return now.UTC().AddDate(0, 0, -retentionDays), nil
}
