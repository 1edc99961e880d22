package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"realtime-core/domain"
	"realtime-core/errors"
)

// CallRepository persists call records in BadgerDB.
//
// The record lives under "call:{uuid}". Two index families exist per
// participant: "callact:{identity}:{uuid}" marks calls not yet in a
// terminal state (kept small so the disconnect sweep stays bounded by
// the calls actually involving that identity), and
// "callhist:{identity}:{timestamp_padded}:{uuid}" orders the call
// history chronologically for reverse scans.
type CallRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewCallRepository(db *badger.DB, log *slog.Logger) *CallRepository {
	return &CallRepository{db: db, log: log}
}

type callRecord struct {
	ID        string `cbor:"1,keyasint"`
	Caller    string `cbor:"2,keyasint"`
	Recipient string `cbor:"3,keyasint"`
	StartTime int64  `cbor:"4,keyasint"`
	EndTime   int64  `cbor:"5,keyasint,omitempty"`
	Status    string `cbor:"6,keyasint"`
	Reason    string `cbor:"7,keyasint,omitempty"`
}

func callKey(id uuid.UUID) []byte {
	return []byte("call:" + id.String())
}

func callActiveKey(identity string, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("callact:%s:%s", identity, id))
}

func callHistoryKey(identity string, start time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("callhist:%s:%019d:%s", identity, start.UnixNano(), id))
}

func encodeCall(c domain.Call) ([]byte, error) {
	rec := callRecord{
		ID:        c.ID.String(),
		Caller:    c.CallerID,
		Recipient: c.RecipientID,
		StartTime: c.StartTime.UnixNano(),
		Status:    string(c.Status),
		Reason:    string(c.TerminationReason),
	}
	if !c.EndTime.IsZero() {
		rec.EndTime = c.EndTime.UnixNano()
	}
	return cbor.Marshal(rec)
}

func decodeCall(raw []byte) (domain.Call, error) {
	var rec callRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return domain.Call{}, err
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Call{}, err
	}
	call := domain.Call{
		ID:                id,
		CallerID:          rec.Caller,
		RecipientID:       rec.Recipient,
		StartTime:         time.Unix(0, rec.StartTime).UTC(),
		Status:            domain.CallStatus(rec.Status),
		TerminationReason: domain.TerminationReason(rec.Reason),
	}
	if rec.EndTime != 0 {
		call.EndTime = time.Unix(0, rec.EndTime).UTC()
	}
	return call, nil
}

// Store persists a new call record together with its per-participant
// indexes. Calls stored already terminal (an immediate miss) skip the
// active index.
func (r *CallRepository) Store(c domain.Call) error {
	value, err := encodeCall(c)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(callKey(c.ID), value); err != nil {
			return err
		}
		for _, identity := range []string{c.CallerID, c.RecipientID} {
			if err := txn.Set(callHistoryKey(identity, c.StartTime, c.ID), nil); err != nil {
				return err
			}
			if c.Status.Terminal() {
				continue
			}
			if err := txn.Set(callActiveKey(identity, c.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the call with the given id.
func (r *CallRepository) Get(id uuid.UUID) (domain.Call, error) {
	var call domain.Call
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(callKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			call, err = decodeCall(raw)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Call{}, fmt.Errorf("%w: call %s", errors.ErrNotFound, id)
	}
	return call, err
}

// Update rewrites the record; once the call is terminal its active
// index entries are dropped in the same transaction.
func (r *CallRepository) Update(c domain.Call) error {
	value, err := encodeCall(c)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(callKey(c.ID), value); err != nil {
			return err
		}
		if !c.Status.Terminal() {
			return nil
		}
		for _, identity := range []string{c.CallerID, c.RecipientID} {
			if err := txn.Delete(callActiveKey(identity, c.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ActiveFor returns the non-terminal calls involving identity.
func (r *CallRepository) ActiveFor(identity string) ([]domain.Call, error) {
	prefix := []byte("callact:" + identity + ":")
	var calls []domain.Call

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			id, err := uuid.Parse(string(key[len(prefix):]))
			if err != nil {
				r.log.Warn("skipping malformed active-call index entry", "key", string(key))
				continue
			}
			item, err := txn.Get(callKey(id))
			if err != nil {
				return err
			}
			var call domain.Call
			if err := item.Value(func(raw []byte) error {
				call, err = decodeCall(raw)
				return err
			}); err != nil {
				return err
			}
			if call.Status.Terminal() {
				continue
			}
			calls = append(calls, call)
		}
		return nil
	})
	return calls, err
}

// HistoryFor returns the most recent limit calls involving identity,
// newest first.
func (r *CallRepository) HistoryFor(identity string, limit int) ([]domain.Call, error) {
	prefix := []byte("callhist:" + identity + ":")
	var calls []domain.Call

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(calls) >= limit {
				break
			}
			key := it.Item().Key()
			rest := string(key[len(prefix):])
			if len(rest) < 21 {
				continue
			}
			id, err := uuid.Parse(rest[20:])
			if err != nil {
				r.log.Warn("skipping malformed call-history index entry", "key", string(key))
				continue
			}
			item, err := txn.Get(callKey(id))
			if err != nil {
				return err
			}
			var call domain.Call
			if err := item.Value(func(raw []byte) error {
				call, err = decodeCall(raw)
				return err
			}); err != nil {
				return err
			}
			calls = append(calls, call)
		}
		return nil
	})
	return calls, err
}
