package storage

import (
	"log/slog"
	"sync"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Writer persists sets in the background. Saves are enqueued in call
// order and applied by a single goroutine, so later saves of the same
// set always win. Callers never wait on the disk.
type Writer struct {
	db     *DB
	logger *slog.Logger

	queue chan saveJob
	once  sync.Once
	done  chan struct{}
}

type saveJob struct {
	set      *domain.CardSet
	sourceID int64
}

// NewWriter starts the background save loop.
func NewWriter(db *DB, logger *slog.Logger) *Writer {
	w := &Writer{
		db:     db,
		logger: logger,
		queue:  make(chan saveJob, 64),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Save enqueues a snapshot of the set for persistence and returns
// immediately. The snapshot is taken here so later mutations of the
// live set do not race the write.
func (w *Writer) Save(set *domain.CardSet) {
	w.SaveFromSource(set, 0)
}

// SaveFromSource is Save with a source attribution for synced decks.
func (w *Writer) SaveFromSource(set *domain.CardSet, sourceID int64) {
	w.queue <- saveJob{set: snapshotSet(set), sourceID: sourceID}
}

// Close stops accepting saves and blocks until queued saves are flushed.
func (w *Writer) Close() {
	w.once.Do(func() {
		close(w.queue)
	})
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)
	for job := range w.queue {
		if err := w.db.SaveSet(job.set, job.sourceID); err != nil {
			w.logger.Error("failed to persist set", "set", job.set.Name, "error", err)
		}
	}
}

// snapshotSet deep-copies the persisted portion of a set.
func snapshotSet(set *domain.CardSet) *domain.CardSet {
	dup := *set
	dup.Cards = make([]*domain.Card, len(set.Cards))
	for i, card := range set.Cards {
		c := *card
		c.Terms = append([]string(nil), card.Terms...)
		c.Fields = append([]domain.CustomField(nil), card.Fields...)
		c.Tags = append([]string(nil), card.Tags...)
		dup.Cards[i] = &c
	}
	dup.CustomFieldNames = append([]string(nil), set.CustomFieldNames...)
	return &dup
}
