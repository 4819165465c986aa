package signer

// Confirmer is the external user-interaction collaborator (spec.md §1
// "out of scope: the on-device user-interaction/confirmation UI").
// Init calls Confirm once before deriving the key schedule; KiSync
// calls ConfirmSync once before streaming records.
type Confirmer interface {
	Confirm(tsx interface{}) (bool, error)
	ConfirmSync() (bool, error)
}

// AutoConfirmer always approves; used by cmd/device and tests that
// don't exercise the rejection path.
type AutoConfirmer struct{}

func (AutoConfirmer) Confirm(interface{}) (bool, error) { return true, nil }
func (AutoConfirmer) ConfirmSync() (bool, error)        { return true, nil }
