package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateVaultRequest представляет тело запроса на создание хранилища.
// Владелец берется из заголовка идентичности, а не из тела.
type CreateVaultRequest struct {
	NomineeWallet     string          `json:"nomineeWallet"`
	Trustees          []string        `json:"trustees"`
	HeartbeatInterval int             `json:"heartbeatInterval"`
	CooldownPeriod    int             `json:"cooldownPeriod"`
	AssetType         string          `json:"assetType"`
	Amount            decimal.Decimal `json:"amount"`
}

// CreateVaultResponse представляет тело ответа при успешном создании.
type CreateVaultResponse struct {
	Success bool      `json:"success"`
	VaultID uuid.UUID `json:"vaultId"`
}

// OwnerRequest - тело запросов, адресованных хранилищу владельца.
type OwnerRequest struct {
	OwnerWallet string `json:"ownerWallet"`
}

// VoteRequest представляет тело запроса на голосование.
type VoteRequest struct {
	OwnerWallet string `json:"ownerWallet"`
	Vote        string `json:"vote"`
}

// SuccessResponse - стандартный ответ без данных.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse - тело ответа с ошибкой. Kind стабилен и пригоден для ветвления на клиенте.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// TallyView - сводка голосов текущего цикла.
type TallyView struct {
	Dead        int  `json:"dead"`
	Alive       int  `json:"alive"`
	Unavailable int  `json:"unavailable"`
	Unknown     int  `json:"unknown"`
	Total       int  `json:"totalTrustees"`
	QuorumMet   bool `json:"quorumMet"`
}

// VaultView - хранилище глазами конкретной идентичности.
type VaultView struct {
	*Vault
	UserRole        Role         `json:"userRole"`
	Capabilities    []Capability `json:"capabilities"`
	EffectiveStatus VaultStatus  `json:"effectiveStatus"`
	HeartbeatDueAt  time.Time    `json:"heartbeatDueAt"`
	Overdue         bool         `json:"overdue"`
	CooldownEndsAt  *time.Time   `json:"cooldownEndsAt,omitempty"`
	Tally           TallyView    `json:"tally"`
}

// ReleaseRecord - запись о передаче активов номинанту, архивируется в объектное хранилище.
type ReleaseRecord struct {
	VaultID           uuid.UUID       `json:"vaultId"`
	Owner             string          `json:"ownerWallet"`
	Nominee           string          `json:"nomineeWallet"`
	Asset             AssetDescriptor `json:"asset"`
	CooldownStartedAt *time.Time      `json:"cooldownStarted,omitempty"`
	TransferredAt     time.Time       `json:"transferredAt"`
}
