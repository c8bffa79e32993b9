package service

import "fmt"

// TxKind names a two-phase file protocol.
type TxKind string

const (
	TxUpload TxKind = "upload"
	TxDelete TxKind = "delete"
)

// TxState is a step of an upload or delete protocol.
type TxState string

const (
	StateCreated         TxState = "created"
	StateMetadataPending TxState = "metadata_pending"
	StateBlobPending     TxState = "blob_pending"
	StateCommitted       TxState = "committed"
	StateFailed          TxState = "failed"
	StateCompensating    TxState = "compensating"
	StateCompensated     TxState = "compensated"
	StateOrphaned        TxState = "orphaned"
)

// Transition is reported to an Observer on every state change.
type Transition struct {
	Kind   TxKind
	BlobID string
	From   TxState
	To     TxState
}

// Observer receives protocol transitions. It is called synchronously and must not block.
type Observer func(Transition)

var transitions = map[TxKind]map[TxState][]TxState{
	TxUpload: {
		StateCreated:         {StateMetadataPending, StateFailed},
		StateMetadataPending: {StateCommitted, StateFailed},
		StateFailed:          {StateCompensating},
		StateCompensating:    {StateCompensated, StateOrphaned},
	},
	TxDelete: {
		StateCreated:         {StateMetadataPending},
		StateMetadataPending: {StateBlobPending, StateFailed},
		StateBlobPending:     {StateCommitted, StateOrphaned},
	},
}

type transaction struct {
	kind     TxKind
	blobID   string
	state    TxState
	observer Observer
}

func newTransaction(kind TxKind, blobID string, observer Observer) *transaction {
	return &transaction{kind: kind, blobID: blobID, state: StateCreated, observer: observer}
}

// advance moves to the next state. An edge outside the protocol is a programming error.
func (t *transaction) advance(to TxState) {
	if !allowed(t.kind, t.state, to) {
		panic(fmt.Sprintf("service: illegal %s transition %s -> %s", t.kind, t.state, to))
	}
	from := t.state
	t.state = to
	if t.observer != nil {
		t.observer(Transition{Kind: t.kind, BlobID: t.blobID, From: from, To: to})
	}
}

func allowed(kind TxKind, from, to TxState) bool {
	for _, next := range transitions[kind][from] {
		if next == to {
			return true
		}
	}
	return false
}
