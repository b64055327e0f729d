// Package journal persists collision episodes and ranger statistics in a
// bbolt file so they survive restarts.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"rover/internal/logging"
	"rover/internal/rover"

	"go.etcd.io/bbolt"
)

var (
	bucketEpisodes = []byte("episodes")
	bucketStats    = []byte("stats")
)

const backlog = 64

// statsKeyLayout is fixed width so keys sort in time order.
const statsKeyLayout = "2006-01-02T15:04:05.000000000Z"

var ErrClosed = errors.New("journal closed")

// Episode is a persisted collision episode.
type Episode struct {
	ID        uint64    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Threshold int       `json:"threshold_mm"`
	ClosestMM int       `json:"closest_mm"`
	Readings  int       `json:"readings"`
	Open      bool      `json:"open"`
}

// StatsRecord is one ranger statistics sample.
type StatsRecord struct {
	At    time.Time         `json:"at"`
	Stats rover.RangerStats `json:"stats"`
}

type eventKind int

const (
	eventStarted eventKind = iota
	eventEnded
	eventStats
	eventFlush
)

type event struct {
	kind    eventKind
	episode rover.Episode
	stats   StatsRecord
	done    chan struct{}
}

// Journal records episodes from the collision guard. Recording methods never
// block: events go through a buffered channel to a single writer goroutine
// and are dropped when the backlog is full.
type Journal struct {
	db     *bbolt.DB
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool
	events chan event
	wg     sync.WaitGroup

	openID  uint64
	dropped atomic.Uint64
}

// Open creates or opens the journal file at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEpisodes, bucketStats} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise journal buckets: %w", err)
	}

	j := &Journal{
		db:     db,
		logger: logging.GetLogger("journal"),
		events: make(chan event, backlog),
	}
	if err := j.closeDangling(); err != nil {
		db.Close()
		return nil, err
	}

	j.wg.Add(1)
	go j.writer()

	j.logger.Info("Journal opened", "path", path)
	return j, nil
}

// closeDangling marks episodes left open by an earlier run as ended.
func (j *Journal) closeDangling() error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEpisodes)

		var dangling []Episode
		err := b.ForEach(func(k, v []byte) error {
			var ep Episode
			if err := json.Unmarshal(v, &ep); err != nil {
				return fmt.Errorf("corrupt episode %x: %w", k, err)
			}
			if ep.Open {
				dangling = append(dangling, ep)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, ep := range dangling {
			ep.Open = false
			if err := putEpisode(b, ep); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *Journal) enqueue(ev event) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return false
	}
	select {
	case j.events <- ev:
		return true
	default:
		j.dropped.Add(1)
		return false
	}
}

// EpisodeStarted implements rover.EpisodeRecorder.
func (j *Journal) EpisodeStarted(ep rover.Episode) {
	j.enqueue(event{kind: eventStarted, episode: ep})
}

// EpisodeEnded implements rover.EpisodeRecorder.
func (j *Journal) EpisodeEnded(ep rover.Episode) {
	j.enqueue(event{kind: eventEnded, episode: ep})
}

// RecordStats appends a ranger statistics sample.
func (j *Journal) RecordStats(stats rover.RangerStats) {
	j.enqueue(event{kind: eventStats, stats: StatsRecord{At: time.Now(), Stats: stats}})
}

// Flush waits until every event queued before it has been written.
func (j *Journal) Flush() error {
	done := make(chan struct{})

	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrClosed
	}
	j.events <- event{kind: eventFlush, done: done}
	j.mu.RUnlock()

	<-done
	return nil
}

// Dropped counts events discarded because the backlog was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

func (j *Journal) writer() {
	defer j.wg.Done()

	for ev := range j.events {
		var err error
		switch ev.kind {
		case eventStarted:
			err = j.writeStarted(ev.episode)
		case eventEnded:
			err = j.writeEnded(ev.episode)
		case eventStats:
			err = j.writeStats(ev.stats)
		case eventFlush:
			close(ev.done)
		}
		if err != nil {
			j.logger.Error("Failed to write journal entry", "error", err)
		}
	}
}

func (j *Journal) writeStarted(src rover.Episode) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEpisodes)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}

		ep := fromRover(id, src)
		ep.Open = true
		if err := putEpisode(b, ep); err != nil {
			return err
		}
		j.openID = id
		return nil
	})
}

func (j *Journal) writeEnded(src rover.Episode) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEpisodes)

		id := j.openID
		if id == 0 {
			// The start was dropped; keep the end on its own.
			next, err := b.NextSequence()
			if err != nil {
				return err
			}
			id = next
		}

		ep := fromRover(id, src)
		ep.Open = false
		if err := putEpisode(b, ep); err != nil {
			return err
		}
		j.openID = 0
		return nil
	})
}

func (j *Journal) writeStats(rec StatsRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStats).Put([]byte(rec.At.UTC().Format(statsKeyLayout)), data)
	})
}

// Episodes returns every recorded episode, oldest first.
func (j *Journal) Episodes() ([]Episode, error) {
	var episodes []Episode
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEpisodes).ForEach(func(k, v []byte) error {
			var ep Episode
			if err := json.Unmarshal(v, &ep); err != nil {
				return fmt.Errorf("corrupt episode %x: %w", k, err)
			}
			episodes = append(episodes, ep)
			return nil
		})
	})
	return episodes, err
}

// LatestStats returns the most recent statistics sample, if any.
func (j *Journal) LatestStats() (StatsRecord, bool, error) {
	var (
		rec   StatsRecord
		found bool
	)
	err := j.db.View(func(tx *bbolt.Tx) error {
		_, v := tx.Bucket(bucketStats).Cursor().Last()
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	return rec, found, err
}

// Close drains pending events and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.events)
	j.mu.Unlock()

	j.wg.Wait()
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	j.logger.Info("Journal closed", "dropped_events", j.Dropped())
	return nil
}

func fromRover(id uint64, ep rover.Episode) Episode {
	return Episode{
		ID:        id,
		StartedAt: ep.StartedAt,
		EndedAt:   ep.EndedAt,
		Threshold: ep.Threshold,
		ClosestMM: ep.ClosestMM,
		Readings:  ep.Readings,
	}
}

func putEpisode(b *bbolt.Bucket, ep Episode) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	return b.Put(itob(ep.ID), data)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
