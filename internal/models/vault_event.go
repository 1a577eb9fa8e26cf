package models

import (
	"time"

	"github.com/google/uuid"
)

// EventKind - тип записи в журнале событий хранилища.
type EventKind string

const (
	EventCreated         EventKind = "created"
	EventHeartbeat       EventKind = "heartbeat"
	EventVoteCast        EventKind = "vote_cast"
	EventCooldownStarted EventKind = "cooldown_started"
	EventTransferred     EventKind = "transferred"
)

// VaultEvent представляет запись журнала изменений хранилища.
// Пишется в той же транзакции, что и само изменение.
type VaultEvent struct {
	ID        int64     `db:"id" json:"id"`
	VaultID   uuid.UUID `db:"vault_id" json:"vaultId"`
	Owner     string    `db:"owner_wallet" json:"ownerWallet"`
	Kind      EventKind `db:"kind" json:"kind"`
	Actor     string    `db:"actor_wallet" json:"actorWallet"` // Кто инициировал изменение
	Detail    string    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
