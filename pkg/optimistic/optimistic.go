// Package optimistic applies user actions to the entity store before the server
// confirms them and settles each one once the response arrives.
//
// Every Apply* call returns a Mutation. Exactly one of its settle methods must be
// called: a Resolve* method with the server response, or Rollback on failure.
// Rollback always restores the snapshot taken before the mutation, whatever
// the cause of the failure.
package optimistic

import (
	"errors"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/anonto42/nano-midea/memberhub/pkg/store"
)

var (
	ErrUnknownItem  = errors.New("optimistic: item not in store")
	ErrUnknownReply = errors.New("optimistic: reply not in store")
	ErrSettled      = errors.New("optimistic: mutation already settled")
)

// Kind names the user action behind a mutation.
type Kind string

const (
	KindLike    Kind = "like"
	KindComment Kind = "comment"
	KindEdit    Kind = "edit"
	KindDelete  Kind = "delete"
)

// TempPrefix starts every client-generated reply id.
const TempPrefix = "tmp-"

// NewTempID returns a fresh, time-ordered placeholder id.
func NewTempID() string {
	return TempPrefix + strings.ToLower(ulid.Make().String())
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}

// Pending describes an in-flight local change.
type Pending struct {
	Kind           Kind
	TargetID       string
	LocalTimestamp time.Time
	TempID         string
}

// Applier applies optimistic mutations to one store.
type Applier struct {
	store *store.Store
	now   func() time.Time

	seq    uint64
	chains map[string]*likeChain
}

// NewApplier returns an applier bound to st.
func NewApplier(st *store.Store) *Applier {
	return &Applier{
		store:  st,
		now:    time.Now,
		chains: make(map[string]*likeChain),
	}
}

// Store returns the store the applier mutates.
func (a *Applier) Store() *store.Store {
	return a.store
}

// InFlight returns the number of unsettled like toggles across all targets.
func (a *Applier) InFlight() int {
	n := 0
	for _, c := range a.chains {
		n += len(c.live)
	}
	return n
}

// Mutation is one applied, not yet settled, local change.
type Mutation struct {
	Pending

	applier *Applier
	itemID  string
	replyID string
	seq     uint64
	settled bool

	field   store.Field
	marked  bool
	restore func()

	userID   string
	chainKey string
}

// ItemID returns the item the mutation touches.
func (m *Mutation) ItemID() string { return m.itemID }

// ReplyID returns the reply the mutation touches, if any.
func (m *Mutation) ReplyID() string { return m.replyID }

// Settled reports whether Rollback or a Resolve method has run.
func (m *Mutation) Settled() bool { return m.settled }

func (a *Applier) newMutation(kind Kind, itemID, replyID string, field store.Field) *Mutation {
	a.seq++
	target := itemID
	if replyID != "" {
		target = replyID
	}
	return &Mutation{
		Pending: Pending{
			Kind:           kind,
			TargetID:       target,
			LocalTimestamp: a.now(),
		},
		applier: a,
		itemID:  itemID,
		replyID: replyID,
		seq:     a.seq,
		field:   field,
	}
}

func (a *Applier) markPending(m *Mutation) {
	var version int64
	if it, ok := a.store.Item(m.itemID); ok {
		version = it.Version
	}
	a.store.MarkPending(m.TargetID, m.field, version)
	m.marked = true
}

// settle marks m settled and releases its pending mark.
func (m *Mutation) settle() error {
	if m.settled {
		return ErrSettled
	}
	m.settled = true
	if m.marked {
		m.applier.store.ClearPending(m.TargetID, m.field)
	}
	return nil
}

// Rollback restores the pre-mutation snapshot of the affected entity.
func (m *Mutation) Rollback() {
	if m.Kind == KindLike {
		m.rollbackLike()
		return
	}
	if err := m.settle(); err != nil {
		return
	}
	if m.restore != nil {
		m.restore()
	}
	glog.V(2).Infof("[optimistic]rollback %s %s\n", m.Kind, m.TargetID)
}

// Resolve settles a mutation whose response carries no record to merge.
func (m *Mutation) Resolve() {
	if m.Kind == KindLike {
		m.ResolveLike(m.confirmedLike())
		return
	}
	m.settle()
}
