package explorer

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"wagerchain/core/events"
	"wagerchain/core/types"
	"wagerchain/native/bet"
	"wagerchain/observability"
)

// Open connects to the explorer database. driver is "sqlite" (default) or
// "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("explorer: unsupported driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
}

// AutoMigrate creates or updates the explorer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{}, &BetRecord{})
}

// DefaultIndexTimeout bounds a single event write so a hung database cannot
// wedge the worker forever.
const DefaultIndexTimeout = 10 * time.Second

// Indexer persists node events. Handle only enqueues: when the queue is full
// the event is dropped, logged and counted, so node dispatch never waits on
// the database.
type Indexer struct {
	db      *gorm.DB
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
	index   func(context.Context, *types.Event) error

	mu      sync.Mutex
	queue   chan *types.Event
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

func NewIndexer(db *gorm.DB, logger *slog.Logger, buffer int) (*Indexer, error) {
	return startIndexer(db, logger, buffer, nil)
}

// startIndexer lets tests substitute the write performed by the worker.
func startIndexer(db *gorm.DB, logger *slog.Logger, buffer int, index func(context.Context, *types.Event) error) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("explorer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1024
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("explorer: migrate: %w", err)
	}
	idx := &Indexer{
		db:      db,
		logger:  logger,
		now:     time.Now,
		timeout: DefaultIndexTimeout,
		queue:   make(chan *types.Event, buffer),
		done:    make(chan struct{}),
	}
	idx.index = idx.Index
	if index != nil {
		idx.index = index
	}
	go idx.run()
	return idx, nil
}

// Handle enqueues evt without blocking. It is meant to be passed to
// core.Node.Subscribe.
func (i *Indexer) Handle(evt *types.Event) {
	if evt == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	select {
	case i.queue <- evt:
	default:
		i.dropped.Add(1)
		observability.Events().Dropped("explorer", evt.Type)
		i.logger.Warn("explorer queue full, event dropped",
			slog.String("type", evt.Type),
			slog.Uint64("sequence", evt.Sequence))
	}
}

// Dropped reports how many events Handle discarded because the queue was
// full.
func (i *Indexer) Dropped() uint64 { return i.dropped.Load() }

// Close stops accepting events and waits for the queue to drain.
func (i *Indexer) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	close(i.queue)
	i.mu.Unlock()
	<-i.done
}

func (i *Indexer) run() {
	defer close(i.done)
	for evt := range i.queue {
		ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
		start := time.Now()
		err := i.index(ctx, evt)
		cancel()
		observability.Events().Indexed(err, time.Since(start))
		if err != nil {
			i.logger.Error("explorer index failed",
				slog.String("type", evt.Type),
				slog.Uint64("sequence", evt.Sequence),
				slog.String("error", err.Error()))
		}
	}
}

// Index stores evt and updates the bet projection. Indexing the same event
// twice is a no-op.
func (i *Indexer) Index(ctx context.Context, evt *types.Event) error {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	record := EventRecord{
		Sequence:   evt.Sequence,
		Type:       evt.Type,
		Digest:     Digest(evt),
		Label:      Label(evt),
		Attributes: string(attrs),
		IndexedAt:  i.now().UTC(),
	}
	if isBetEvent(evt.Type) {
		record.BetID = evt.Attr("id")
	}
	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if record.BetID == "" {
			return nil
		}
		return i.project(tx, evt)
	})
}

func (i *Indexer) project(tx *gorm.DB, evt *types.Event) error {
	id := evt.Attr("id")
	now := i.now().UTC()
	if evt.Type == events.TypeBetCreated {
		betType := bet.TypeOpen
		if evt.Attr("type") == "1" {
			betType = bet.TypePrivate
		}
		var deadline uint64
		if raw := evt.Attr("deadline"); raw != "" {
			if _, err := fmt.Sscan(raw, &deadline); err != nil {
				return fmt.Errorf("explorer: deadline %q: %w", raw, err)
			}
		}
		rec := BetRecord{
			ID:         id,
			Type:       betType.String(),
			Token:      evt.Attr("token"),
			Initiator:  evt.Attr("initiator"),
			Arbiter:    evt.Attr("arbiter"),
			Acceptor:   evt.Attr("acceptor"),
			Stake:      evt.Attr("stake"),
			Payout:     evt.Attr("payout"),
			Custody:    evt.Attr("stake"),
			Deadline:   deadline,
			Status:     bet.StatusInitiated.String(),
			CreatedSeq: evt.Sequence,
			UpdatedSeq: evt.Sequence,
			UpdatedAt:  now,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	}

	updates := map[string]interface{}{
		"updated_seq": evt.Sequence,
		"updated_at":  now,
	}
	switch evt.Type {
	case events.TypeBetAccepted:
		updates["status"] = bet.StatusAccepted.String()
		updates["acceptor"] = evt.Attr("acceptor")
		updates["custody"] = evt.Attr("custody")
	case events.TypeBetResolved:
		updates["status"] = bet.StatusResolved.String()
		updates["winner"] = evt.Attr("winner")
		updates["loser"] = evt.Attr("loser")
	case events.TypeBetSettled:
		updates["status"] = bet.StatusWithdrawn.String()
		updates["custody"] = "0"
	case events.TypeBetCancelled, events.TypeBetExpired:
		updates["status"] = bet.StatusCancelled.String()
		updates["custody"] = "0"
	default:
		return nil
	}
	// Out-of-order delivery must not move a bet backwards.
	return tx.Model(&BetRecord{}).
		Where("id = ? AND updated_seq < ?", id, evt.Sequence).
		Updates(updates).Error
}

func isBetEvent(eventType string) bool {
	return strings.HasPrefix(eventType, "bet.")
}

// Digest is the blake3 hash of the event type, sequence and sorted
// attributes, hex encoded.
func Digest(evt *types.Event) string {
	h := blake3.New(32, nil)
	h.Write([]byte(evt.Type))
	h.Write([]byte{0})
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], evt.Sequence)
	h.Write(seq[:])
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(evt.Attributes[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
