package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"realtime-core/domain"
	"realtime-core/errors"
)

// UserRepository holds the account projection under "user:{identity}".
// Account records are authored by the external login service writing to
// the same store; this core only reads them and maintains the
// online/lastSeen projection.
type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

type userRecord struct {
	Identity    string `cbor:"1,keyasint"`
	DisplayName string `cbor:"2,keyasint"`
	Online      bool   `cbor:"3,keyasint"`
	LastSeen    int64  `cbor:"4,keyasint,omitempty"`
}

func userKey(identity string) []byte {
	return []byte("user:" + identity)
}

// Resolve implements contract.AccountDirectory.
func (r *UserRepository) Resolve(identity string) (domain.Profile, error) {
	var profile domain.Profile
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(identity))
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			var rec userRecord
			if err := cbor.Unmarshal(raw, &rec); err != nil {
				return err
			}
			profile = domain.Profile{
				Identity:    rec.Identity,
				DisplayName: rec.DisplayName,
				Online:      rec.Online,
			}
			if rec.LastSeen != 0 {
				profile.LastSeen = time.Unix(0, rec.LastSeen).UTC()
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Profile{}, fmt.Errorf("%w: identity %q", errors.ErrNotFound, identity)
	}
	return profile, err
}

// SetPresence updates the online/lastSeen projection. Missing accounts
// are reported so the caller can log the inconsistency.
func (r *UserRepository) SetPresence(identity string, online bool, lastSeen time.Time) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(identity))
		if err != nil {
			return err
		}
		var rec userRecord
		if err := item.Value(func(raw []byte) error {
			return cbor.Unmarshal(raw, &rec)
		}); err != nil {
			return err
		}
		rec.Online = online
		rec.LastSeen = lastSeen.UnixNano()
		value, err := cbor.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(userKey(identity), value)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: identity %q", errors.ErrNotFound, identity)
	}
	return err
}

// Save upserts an account record. The server itself never registers
// accounts; this exists for the seeding tool and tests.
func (r *UserRepository) Save(profile domain.Profile) error {
	rec := userRecord{
		Identity:    profile.Identity,
		DisplayName: profile.DisplayName,
		Online:      profile.Online,
	}
	if !profile.LastSeen.IsZero() {
		rec.LastSeen = profile.LastSeen.UnixNano()
	}
	value, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(profile.Identity), value)
	})
}
