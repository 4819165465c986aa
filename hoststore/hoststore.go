// Package hoststore is the untrusted host's own bookkeeping: a
// BadgerDB-backed cache of previously received outputs (scanned by
// kisync) and the offloaded per-input fragment ledger the signing
// state machine hands back to the host between SetInput and
// InputVinI/SignInput (spec.md §9 "multi-stage offload trick"). None
// of this is trusted input to the device core — the device re-
// verifies every fragment's HMAC on re-presentation regardless of
// what this store returns.
package hoststore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// Store wraps a BadgerDB instance, following the teacher's
// storage.Database pattern of one badger.DB per process.
type Store struct {
	db *badger.DB
}

// Open opens or creates the host-side store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("hoststore: open: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// TransferDetails is one previously-received output the wallet has
// scanned and may want a key image for.
type TransferDetails struct {
	OutKey              [32]byte
	TxPubKey            [32]byte
	AdditionalTxPubKeys [][32]byte
	InternalOutputIndex int
}

// SaveTransferDetails records a scanned output, keyed by its one-time
// public key.
func (s *Store) SaveTransferDetails(td TransferDetails) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(td)
		if err != nil {
			return err
		}
		return txn.Set(makeTransferKey(td.OutKey), data)
	})
}

// ListTransferDetails returns every scanned output in the store, for
// kisync to stream to the device. Records are not marked as synced, so
// outputs already synced are returned again.
func (s *Store) ListTransferDetails() ([]TransferDetails, error) {
	var out []TransferDetails
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{'x'}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var td TransferDetails
				if err := json.Unmarshal(val, &td); err != nil {
					return err
				}
				out = append(out, td)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hoststore: list transfer details: %w", err)
	}
	return out, nil
}

// InputFragment is everything the device handed back for one input at
// SetInput, that the host must hold and re-present unchanged at
// InputVinI and SignInput.
type InputFragment struct {
	VinBytes      []byte
	HmacVin       [32]byte
	PseudoOut     [32]byte
	PseudoOutHmac [32]byte
	AlphaEnc      []byte
}

// SaveInputFragment stores one input's offloaded fragment, keyed by
// its load-order index within the current signing session.
func (s *Store) SaveInputFragment(sessionID string, idx int, f InputFragment) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return txn.Set(makeFragmentKey(sessionID, idx), data)
	})
}

// LoadInputFragment retrieves a previously saved fragment.
func (s *Store) LoadInputFragment(sessionID string, idx int) (InputFragment, error) {
	var f InputFragment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeFragmentKey(sessionID, idx))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &f)
		})
	})
	if err != nil {
		return InputFragment{}, fmt.Errorf("hoststore: load input fragment: %w", err)
	}
	return f, nil
}

// PurgeSession deletes every fragment belonging to a finished or
// aborted signing session.
func (s *Store) PurgeSession(sessionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := append([]byte{'f'}, []byte(sessionID)...)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, append([]byte{}, it.Item().Key()...))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func makeTransferKey(outKey [32]byte) []byte {
	key := make([]byte, 33)
	key[0] = 'x'
	copy(key[1:], outKey[:])
	return key
}

func makeFragmentKey(sessionID string, idx int) []byte {
	key := make([]byte, 0, 1+len(sessionID)+8)
	key = append(key, 'f')
	key = append(key, []byte(sessionID)...)
	idxBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idxBuf, uint64(idx))
	return append(key, idxBuf...)
}
