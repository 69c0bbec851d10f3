package explorer

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a bet has not been indexed.
var ErrNotFound = errors.New("explorer: not found")

const (
	defaultLimit = 50
	maxLimit     = 500
)

type BetFilter struct {
	Participant string
	Status      string
	Token       string
	Limit       int
	Offset      int
}

type EventFilter struct {
	BetID string
	Type  string
	// After returns only events with a greater sequence.
	After uint64
	Limit int
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Bets lists indexed bets, oldest first.
func (i *Indexer) Bets(ctx context.Context, filter BetFilter) ([]BetRecord, error) {
	query := i.db.WithContext(ctx).Model(&BetRecord{})
	if p := strings.TrimSpace(filter.Participant); p != "" {
		query = query.Where("initiator = ? OR arbiter = ? OR acceptor = ?", p, p, p)
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Status)); s != "" {
		query = query.Where("status = ?", s)
	}
	if t := strings.ToUpper(strings.TrimSpace(filter.Token)); t != "" {
		query = query.Where("token = ?", t)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var out []BetRecord
	err := query.Order("created_seq ASC").Limit(clampLimit(filter.Limit)).Find(&out).Error
	return out, err
}

func (i *Indexer) Bet(ctx context.Context, id string) (*BetRecord, error) {
	var rec BetRecord
	err := i.db.WithContext(ctx).Where("LOWER(id) = ?", strings.ToLower(strings.TrimSpace(id))).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Events lists indexed events in sequence order.
func (i *Indexer) Events(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	query := i.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", filter.After)
	if id := strings.TrimSpace(filter.BetID); id != "" {
		query = query.Where("LOWER(bet_id) = ?", strings.ToLower(id))
	}
	if t := strings.TrimSpace(filter.Type); t != "" {
		if strings.HasSuffix(t, ".") {
			query = query.Where("type LIKE ?", t+"%")
		} else {
			query = query.Where("type = ?", t)
		}
	}
	var out []EventRecord
	err := query.Order("sequence ASC").Limit(clampLimit(filter.Limit)).Find(&out).Error
	return out, err
}

// LastSequence returns the highest indexed sequence, zero when empty.
func (i *Indexer) LastSequence(ctx context.Context) (uint64, error) {
	var seq *uint64
	err := i.db.WithContext(ctx).Model(&EventRecord{}).Select("MAX(sequence)").Scan(&seq).Error
	if err != nil || seq == nil {
		return 0, err
	}
	return *seq, nil
}
