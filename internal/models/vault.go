package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Длительность одних "суток" протокола.
const Day = 24 * time.Hour

// MaxTrustees - максимальное число доверенных лиц у хранилища.
const MaxTrustees = 5

// Vault представляет наследственный контракт одного владельца.
// Ключом записи является кошелек владельца (owner_wallet).
type Vault struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	Owner                 string          `db:"owner_wallet" json:"ownerWallet"`
	Nominee               string          `db:"nominee_wallet" json:"nomineeWallet"`
	Trustees              pq.StringArray  `db:"trustees" json:"trustees"`
	Status                VaultStatus     `db:"status" json:"status"`
	HeartbeatIntervalDays int             `db:"heartbeat_interval_days" json:"heartbeatInterval"`
	CooldownPeriodDays    int             `db:"cooldown_period_days" json:"cooldownPeriod"`
	AssetType             string          `db:"asset_type" json:"assetType"`
	Amount                decimal.Decimal `db:"amount" json:"amount"`
	LastHeartbeatAt       time.Time       `db:"last_heartbeat_at" json:"lastHeartbeat"`
	CooldownStartedAt     *time.Time      `db:"cooldown_started_at" json:"cooldownStarted,omitempty"` // может быть NULL
	TransferredAt         *time.Time      `db:"transferred_at" json:"transferredAt,omitempty"`        // может быть NULL
	Votes                 Votes           `db:"votes" json:"votes"`
	CreatedAt             time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updatedAt"`
	Version               int64           `db:"version" json:"-"` // токен оптимистичной блокировки
}

// Asset возвращает описание актива хранилища.
func (v *Vault) Asset() AssetDescriptor {
	return AssetDescriptor{Kind: v.AssetType, Amount: v.Amount}
}

// IsTrustee сообщает, входит ли кошелек в список доверенных лиц.
func (v *Vault) IsTrustee(wallet string) bool {
	for _, t := range v.Trustees {
		if t == wallet {
			return true
		}
	}
	return false
}

// HeartbeatDueAt - момент, после которого heartbeat считается просроченным.
func (v *Vault) HeartbeatDueAt() time.Time {
	return v.LastHeartbeatAt.Add(time.Duration(v.HeartbeatIntervalDays) * Day)
}

// CooldownEndsAt возвращает окончание периода ожидания или nil, если он не начат.
func (v *Vault) CooldownEndsAt() *time.Time {
	if v.CooldownStartedAt == nil {
		return nil
	}
	end := v.CooldownStartedAt.Add(time.Duration(v.CooldownPeriodDays) * Day)
	return &end
}

// EffectiveStatus вычисляет статус на момент now.
// pending_vote никогда не хранится в БД, он выводится из просроченного heartbeat.
func (v *Vault) EffectiveStatus(now time.Time) VaultStatus {
	if v.Status == StatusActive && now.After(v.HeartbeatDueAt()) {
		return StatusPendingVote
	}
	return v.Status
}

// Clone возвращает глубокую копию записи.
func (v *Vault) Clone() *Vault {
	c := *v
	c.Trustees = append(pq.StringArray(nil), v.Trustees...)
	c.Votes = append(Votes(nil), v.Votes...)
	if v.CooldownStartedAt != nil {
		t := *v.CooldownStartedAt
		c.CooldownStartedAt = &t
	}
	if v.TransferredAt != nil {
		t := *v.TransferredAt
		c.TransferredAt = &t
	}
	return &c
}

// AssetDescriptor - непрозрачная пара {тип, количество}.
type AssetDescriptor struct {
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// Vote - голос доверенного лица в текущем цикле голосования.
type Vote struct {
	Trustee string     `json:"trusteeWallet"`
	Choice  VoteChoice `json:"vote"`
	CastAt  time.Time  `json:"timestamp"`
}

// Votes хранится в колонке JSONB.
type Votes []Vote

// Replace добавляет голос в конец, убирая прежний голос того же доверенного лица.
// В списке остается не больше одного голоса на кошелек.
func (vs Votes) Replace(v Vote) Votes {
	out := make(Votes, 0, len(vs)+1)
	for _, prev := range vs {
		if prev.Trustee != v.Trustee {
			out = append(out, prev)
		}
	}
	return append(out, v)
}

// Value реализует driver.Valuer.
func (vs Votes) Value() (driver.Value, error) {
	if vs == nil {
		vs = Votes{}
	}
	b, err := json.Marshal([]Vote(vs))
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации голосов: %w", err)
	}
	return string(b), nil
}

// Scan реализует sql.Scanner.
func (vs *Votes) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		*vs = Votes{}
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("неподдерживаемый тип для голосов: %T", src)
	}
	var out []Vote
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("ошибка разбора голосов: %w", err)
	}
	if out == nil {
		out = []Vote{}
	}
	*vs = out
	return nil
}

// ErrUnknownEnumValue возвращается при разборе неизвестного значения перечисления.
var ErrUnknownEnumValue = errors.New("неизвестное значение")
