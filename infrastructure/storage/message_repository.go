package storage

import (
	"campus-chat/domain/chat"
	"campus-chat/errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	messagePrefix = "msg:"
	sequenceKey   = "seq:msg"
	// Number of sequence values leased from Badger at once.
	sequenceBandwidth = 100
)

// MessageRepository stores chat messages in BadgerDB.
// The key is formatted as "msg:{timestamp_padded}:{seq_padded}" so that a
// lexicographical scan returns messages in chronological order, ties broken
// by insertion order.
type MessageRepository struct {
	mu       sync.Mutex
	db       *badger.DB
	log      *slog.Logger
	sequence *badger.Sequence
	lastAt   time.Time
	now      func() time.Time
}

// NewMessageRepository resumes from the newest stored message so timestamps keep
// growing across restarts, even when the clock now reads earlier.
// The sequence is leased on first append, which keeps read-only DBs usable.
func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	m := &MessageRepository{
		db:  db,
		log: log,
		now: time.Now,
	}
	newest, err := m.Recent(1)
	if err != nil {
		return nil, err
	}
	if len(newest) > 0 {
		m.lastAt = newest[0].CreatedAt
	}
	return m, nil
}

// Close releases the unused part of the leased sequence.
// It must be called before closing the underlying DB.
func (m *MessageRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sequence == nil {
		return nil
	}
	return m.sequence.Release()
}

// Append assigns identity, sequence and timestamp, then persists the message.
// Timestamps never go backwards, so chronological order and append order agree.
func (m *MessageRepository) Append(author, content string) (chat.Message, error) {
	// Held until the write commits so a reader never sees a sequence gap.
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sequence == nil {
		sequence, err := m.db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
		if err != nil {
			return chat.Message{}, fmt.Errorf("%w: lease message sequence: %w", errors.ErrStorage, err)
		}
		m.sequence = sequence
	}
	next, err := m.sequence.Next()
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: next sequence: %w", errors.ErrStorage, err)
	}
	at := m.now().UTC().Round(0)
	if at.Before(m.lastAt) {
		at = m.lastAt
	}

	message := chat.Message{
		ID:        uuid.New(),
		Seq:       next + 1, // Badger sequences start at zero
		Author:    author,
		Content:   content,
		CreatedAt: at,
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), encodeMessage(message))
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: append message: %w", errors.ErrStorage, err)
	}
	m.lastAt = at
	return message, nil
}

// Recent returns up to limit of the most recent messages, oldest first.
// It scans backwards from the end of the prefix and reverses the result.
func (m *MessageRepository) Recent(limit int) ([]chat.Message, error) {
	messages := make([]chat.Message, 0, max(limit, 0))
	if limit <= 0 {
		return messages, nil
	}
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Let's go after the newest position msg:\xff, then walk back
		for it.Seek(append(prefix, 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			message, err := decodeMessage(value)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read recent messages: %w", errors.ErrStorage, err)
	}
	return lo.Reverse(messages), nil
}

func (m *MessageRepository) Count() (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(messagePrefix)
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count messages: %w", errors.ErrStorage, err)
	}
	return count, nil
}

// DeleteOldest removes the n chronologically oldest messages.
// A non-positive n leaves the store untouched.
func (m *MessageRepository) DeleteOldest(n int) error {
	if n <= 0 {
		return nil
	}
	keys, err := m.oldestKeys(n)
	if err != nil {
		return fmt.Errorf("%w: scan oldest messages: %w", errors.ErrStorage, err)
	}
	if err = m.deleteKeys(keys); err != nil {
		return fmt.Errorf("%w: delete oldest messages: %w", errors.ErrStorage, err)
	}
	m.log.Debug("Oldest messages deleted", "count", len(keys))
	return nil
}

// Clear drops every stored message and returns how many were removed.
// The insertion sequence is kept so sequence numbers are never reused.
func (m *MessageRepository) Clear() (int, error) {
	count, err := m.Count()
	if err != nil {
		return 0, err
	}
	if err = m.db.DropPrefix([]byte(messagePrefix)); err != nil {
		return 0, fmt.Errorf("%w: clear messages: %w", errors.ErrStorage, err)
	}
	return count, nil
}

func (m *MessageRepository) oldestKeys(n int) ([][]byte, error) {
	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(messagePrefix)
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(keys) < n; it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// deleteKeys uses a WriteBatch so large deletions are split across transactions.
func (m *MessageRepository) deleteKeys(keys [][]byte) error {
	batch := m.db.NewWriteBatch()
	for _, key := range keys {
		if err := batch.Delete(key); err != nil {
			batch.Cancel()
			return err
		}
	}
	return batch.Flush()
}

func messageKey(message chat.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%020d",
		messagePrefix,
		message.CreatedAt.UnixNano(),
		message.Seq,
	))
}
