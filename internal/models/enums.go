package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// VaultStatus - закрытое перечисление статусов хранилища.
type VaultStatus uint8

const (
	StatusActive VaultStatus = iota + 1
	StatusPendingVote
	StatusCooldown
	StatusTransferred
)

var statusNames = map[VaultStatus]string{
	StatusActive:      "active",
	StatusPendingVote: "pending_vote",
	StatusCooldown:    "cooldown",
	StatusTransferred: "transferred",
}

func (s VaultStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("VaultStatus(%d)", uint8(s))
}

// ParseVaultStatus разбирает строковое представление статуса.
func ParseVaultStatus(raw string) (VaultStatus, error) {
	for s, name := range statusNames {
		if name == raw {
			return s, nil
		}
	}
	return 0, fmt.Errorf("статус %q: %w", raw, ErrUnknownEnumValue)
}

func (s VaultStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *VaultStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseVaultStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value реализует driver.Valuer.
func (s VaultStatus) Value() (driver.Value, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("статус %d: %w", uint8(s), ErrUnknownEnumValue)
	}
	return s.String(), nil
}

// Scan реализует sql.Scanner.
func (s *VaultStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("неподдерживаемый тип для статуса: %T", src)
	}
	parsed, err := ParseVaultStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// VoteChoice - закрытое перечисление вариантов голоса.
type VoteChoice uint8

const (
	VoteAlive VoteChoice = iota + 1
	VoteUnavailable
	VoteDead
	VoteUnknown
)

var choiceNames = map[VoteChoice]string{
	VoteAlive:       "alive",
	VoteUnavailable: "unavailable",
	VoteDead:        "dead",
	VoteUnknown:     "unknown",
}

func (c VoteChoice) String() string {
	if name, ok := choiceNames[c]; ok {
		return name
	}
	return fmt.Sprintf("VoteChoice(%d)", uint8(c))
}

// Valid сообщает, является ли значение одним из допустимых вариантов.
func (c VoteChoice) Valid() bool {
	_, ok := choiceNames[c]
	return ok
}

// ParseVoteChoice разбирает строковое представление голоса.
func ParseVoteChoice(raw string) (VoteChoice, error) {
	for c, name := range choiceNames {
		if name == raw {
			return c, nil
		}
	}
	return 0, fmt.Errorf("голос %q: %w", raw, ErrUnknownEnumValue)
}

func (c VoteChoice) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *VoteChoice) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseVoteChoice(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Role - роль идентичности относительно хранилища.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleTrustee Role = "trustee"
	RoleNominee Role = "nominee"
)

// Capability - действие, разрешенное роли.
type Capability string

const (
	CapHeartbeat       Capability = "heartbeat"
	CapStartCooldown   Capability = "start_cooldown"
	CapVote            Capability = "vote"
	CapConfirmDeath    Capability = "confirm_death"
	CapDownloadRelease Capability = "download_release"
)
