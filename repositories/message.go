// Package repositories implements the persistence contracts on
// BadgerDB with CBOR-encoded values.
package repositories

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"realtime-core/domain"
	"realtime-core/errors"
)

// MessageRepository persists chat messages in BadgerDB.
//
// Data keys are "msg:{pair}:{timestamp_padded}:{uuid}" where pair is
// the sorted identity pair, so a prefix scan over one conversation
// yields messages in chronological order (19-digit zero padding makes
// lexicographic order match time order, the trailing UUID disambiguates
// same-nanosecond writes). A second "msgid:{uuid}" index maps a message
// id back to its data key for status updates and deletes.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

type messageRecord struct {
	ID        string `cbor:"1,keyasint"`
	Sender    string `cbor:"2,keyasint"`
	Recipient string `cbor:"3,keyasint"`
	Body      string `cbor:"4,keyasint"`
	CreatedAt int64  `cbor:"5,keyasint"`
	Status    string `cbor:"6,keyasint"`
}

func conversationPair(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "/" + b
}

func messageKey(m domain.Message) []byte {
	pair := conversationPair(m.SenderID, m.RecipientID)
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", pair, m.CreatedAt.UnixNano(), m.ID))
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func encodeMessage(m domain.Message) ([]byte, error) {
	return cbor.Marshal(messageRecord{
		ID:        m.ID.String(),
		Sender:    m.SenderID,
		Recipient: m.RecipientID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt.UnixNano(),
		Status:    string(m.Status),
	})
}

func decodeMessage(raw []byte) (domain.Message, error) {
	var rec messageRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return domain.Message{}, err
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:          id,
		SenderID:    rec.Sender,
		RecipientID: rec.Recipient,
		Body:        rec.Body,
		CreatedAt:   time.Unix(0, rec.CreatedAt).UTC(),
		Status:      domain.MessageStatus(rec.Status),
	}, nil
}

// Store persists a new message and its id index in one transaction.
func (r *MessageRepository) Store(m domain.Message) error {
	value, err := encodeMessage(m)
	if err != nil {
		return err
	}
	key := messageKey(m)
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(m.ID), key)
	})
}

// Get returns the message with the given id.
func (r *MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var msg domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			msg, err = decodeMessage(raw)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	return msg, err
}

// UpdateStatus moves the message to status, enforcing the forward-only
// lifecycle: any attempted regression fails and leaves the record
// untouched.
func (r *MessageRepository) UpdateStatus(id uuid.UUID, status domain.MessageStatus) (domain.Message, error) {
	if !status.Valid() {
		return domain.Message{}, fmt.Errorf("%w: unknown status %q", errors.ErrInvalidRequest, status)
	}
	var updated domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var msg domain.Message
		if err := item.Value(func(raw []byte) error {
			msg, err = decodeMessage(raw)
			return err
		}); err != nil {
			return err
		}
		if !msg.Status.CanAdvance(status) {
			return fmt.Errorf("%w: %s -> %s", errors.ErrStatusRegression, msg.Status, status)
		}
		msg.Status = status
		value, err := encodeMessage(msg)
		if err != nil {
			return err
		}
		if err := txn.Set(key, value); err != nil {
			return err
		}
		updated = msg
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, err
	}
	return updated, nil
}

// Conversation returns the most recent limit messages between the two
// identities, in ascending chronological order. Plain retrieval never
// mutates status.
func (r *MessageRepository) Conversation(identityA, identityB string, limit int) ([]domain.Message, error) {
	prefix := []byte("msg:" + conversationPair(identityA, identityB) + ":")
	var messages []domain.Message

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the newest possible key of this conversation, then
		// walk backwards collecting up to limit messages.
		seek := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) >= limit {
				break
			}
			var msg domain.Message
			if err := it.Item().Value(func(raw []byte) error {
				var err error
				msg, err = decodeMessage(raw)
				return err
			}); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// Delete removes a message and its index entry.
func (r *MessageRepository) Delete(id uuid.UUID) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(messageIndexKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	return err
}

func resolveMessageKey(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageIndexKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
