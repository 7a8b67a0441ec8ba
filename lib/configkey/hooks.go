package configkey

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/quorum"
	"github.com/google/uuid"
)

// DmCryptPrefix returns the prefix of all dm-crypt secrets of a device.
func DmCryptPrefix(device uuid.UUID) string {
	return "dm-crypt/" + device.String() + "/"
}

// DmCryptKey returns the key of the device's dm-crypt secret.
func DmCryptKey(device uuid.UUID) string {
	return DmCryptPrefix(device) + "luks"
}

// DaemonPrivatePrefix returns the prefix of the private entries of the daemon serving a device.
func DaemonPrivatePrefix(id int) string {
	return "daemon-private/" + strconv.Itoa(id) + "/"
}

// Validation is the outcome of ValidateCreate.
type Validation uint8

const (
	// ValidationOK means no secret is bound to the device yet.
	ValidationOK Validation = iota
	// ValidationAlreadyBound means the identical secret is already bound. Creating again is a no-op.
	ValidationAlreadyBound
	// ValidationConflict means a different secret is bound to the device.
	ValidationConflict
)

func (v Validation) String() string {
	switch v {
	case ValidationOK:
		return "ok"
	case ValidationAlreadyBound:
		return "already bound"
	case ValidationConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Code returns the reply code of the outcome.
func (v Validation) Code() RetCode {
	switch v {
	case ValidationAlreadyBound:
		return RetCExistsMatch
	case ValidationConflict:
		return RetCExists
	default:
		return RetCSuccess
	}
}

// Hooks binds device secrets to the create and destroy lifecycle of a device.
//
// The validate functions only read. The apply functions stage their mutations and
// trigger a proposal without waiting for the commit. They must only be called on the
// leader, after the matching validate function succeeded.
type Hooks struct {
	quorum    quorum.Quorum
	store     *Store
	committer *Committer
}

// NewHooks creates the lifecycle hooks.
func NewHooks(q quorum.Quorum, store *Store) *Hooks {
	return &Hooks{
		quorum:    q,
		store:     store,
		committer: NewCommitter(q),
	}
}

// ValidateCreate checks whether secret can be bound to device.
func (h *Hooks) ValidateCreate(device uuid.UUID, secret []byte) (Validation, error) {
	existing, err := h.store.Get(DmCryptKey(device))
	if IsNotFound(err) {
		return ValidationOK, nil
	}
	if err != nil {
		log.Debugf("%s unable to get dm-crypt key from store: %v", logPrefix(h.quorum.Epoch()), err)
		return ValidationOK, err
	}
	if bytes.Equal(existing, secret) {
		return ValidationAlreadyBound, nil
	}
	return ValidationConflict, nil
}

// ApplyCreate stages the dm-crypt secret of device and triggers a proposal. Proposals
// must be plugged so the put travels in the same transaction as the rest of the
// device's creation.
func (h *Hooks) ApplyCreate(device uuid.UUID, secret []byte) error {
	if !h.quorum.IsPlugged() {
		return quorum.ErrNotPlugged
	}
	key := DmCryptKey(device)
	h.committer.CommitMutation(func(tx *db.Transaction) { h.store.Put(tx, key, secret) }, nil)
	return nil
}

// ValidateDestroy reports whether anything is bound to the device, under either its
// dm-crypt prefix or the daemon-private prefix of id.
func (h *Hooks) ValidateDestroy(device uuid.UUID, id int) bool {
	return h.store.HasPrefix(DmCryptPrefix(device)) || h.store.HasPrefix(DaemonPrivatePrefix(id))
}

// ApplyDestroy stages the removal of everything bound to the device into one transaction
// and triggers a single proposal. If a scan fails nothing is staged. Like ApplyCreate
// it requires plugged proposals.
func (h *Hooks) ApplyDestroy(device uuid.UUID, id int) error {
	if !h.quorum.IsPlugged() {
		return quorum.ErrNotPlugged
	}
	staged := db.NewTransaction()
	total := 0
	for _, prefix := range []string{DmCryptPrefix(device), DaemonPrivatePrefix(id)} {
		n, err := h.store.DeletePrefix(staged, prefix)
		if err != nil {
			return fmt.Errorf("destroy %s: %w", device, err)
		}
		total += n
	}

	log.Infof("%s destroying %d entries bound to device %s (id %d)",
		logPrefix(h.quorum.Epoch()), total, device, id)
	h.committer.CommitMutation(func(tx *db.Transaction) { tx.Append(staged) }, nil)
	return nil
}
