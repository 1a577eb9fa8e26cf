package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/devxaves/lifeline-protocol/internal/models"
)

// VaultRepository определяет методы для работы с записями хранилищ.
// Любое изменение записи выполняется одним условным UPDATE по номеру версии.
type VaultRepository interface {
	CreateVault(ctx context.Context, vault *models.Vault) error
	GetVaultByOwner(ctx context.Context, owner string) (*models.Vault, error)
	FindVaultByTrustee(ctx context.Context, wallet string) (*models.Vault, error)
	FindVaultByNominee(ctx context.Context, wallet string) (*models.Vault, error)
	UpdateVault(ctx context.Context, vault *models.Vault, expectedVersion int64, event *models.VaultEvent) error
}

const vaultColumns = `id, owner_wallet, nominee_wallet, trustees, status, heartbeat_interval_days,
	cooldown_period_days, asset_type, amount, last_heartbeat_at, cooldown_started_at, transferred_at,
	votes, created_at, updated_at, version`

// postgresVaultRepository реализует VaultRepository для PostgreSQL.
type postgresVaultRepository struct {
	db *sqlx.DB
}

// NewPostgresVaultRepository создает новый экземпляр репозитория хранилищ.
func NewPostgresVaultRepository(db *sqlx.DB) VaultRepository {
	return &postgresVaultRepository{db: db}
}

// CreateVault вставляет новое хранилище и событие "created" в одной транзакции.
// Возвращает ErrVaultExists, если у владельца уже есть хранилище.
func (r *postgresVaultRepository) CreateVault(ctx context.Context, vault *models.Vault) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		log.Printf("[VaultRepo] Ошибка начала транзакции для '%s': %v", vault.Owner, err)
		return fmt.Errorf("ошибка начала транзакции: %w", wrapConnErr(err))
	}
	defer rollback(tx)

	query := `INSERT INTO vaults (` + vaultColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = tx.ExecContext(ctx, query,
		vault.ID, vault.Owner, vault.Nominee, vault.Trustees, vault.Status, vault.HeartbeatIntervalDays,
		vault.CooldownPeriodDays, vault.AssetType, vault.Amount, vault.LastHeartbeatAt, vault.CooldownStartedAt,
		vault.TransferredAt, vault.Votes, vault.CreatedAt, vault.UpdatedAt, vault.Version,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Printf("[VaultRepo] Хранилище для владельца '%s' уже существует", vault.Owner)
			return ErrVaultExists
		}
		log.Printf("[VaultRepo] Непредвиденная ошибка при создании хранилища '%s': %v", vault.Owner, err)
		return fmt.Errorf("ошибка выполнения запроса на создание хранилища: %w", wrapConnErr(err))
	}

	if err = insertEvent(ctx, tx, &models.VaultEvent{
		VaultID:   vault.ID,
		Owner:     vault.Owner,
		Kind:      models.EventCreated,
		Actor:     vault.Owner,
		CreatedAt: vault.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[VaultRepo] Ошибка фиксации транзакции создания '%s': %v", vault.Owner, err)
		return fmt.Errorf("ошибка фиксации транзакции: %w", wrapConnErr(err))
	}

	log.Printf("[VaultRepo] Хранилище (ID: %s) создано для владельца '%s'", vault.ID, vault.Owner)
	return nil
}

// GetVaultByOwner находит хранилище по кошельку владельца.
func (r *postgresVaultRepository) GetVaultByOwner(ctx context.Context, owner string) (*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE owner_wallet=$1`
	return r.getOne(ctx, "владельца", owner, query)
}

// FindVaultByTrustee находит первое (самое раннее) хранилище, где кошелек указан доверенным лицом.
func (r *postgresVaultRepository) FindVaultByTrustee(ctx context.Context, wallet string) (*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE $1 = ANY(trustees) ORDER BY created_at LIMIT 1`
	return r.getOne(ctx, "доверенного лица", wallet, query)
}

// FindVaultByNominee находит первое (самое раннее) хранилище, где кошелек указан номинантом.
func (r *postgresVaultRepository) FindVaultByNominee(ctx context.Context, wallet string) (*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE nominee_wallet=$1 ORDER BY created_at LIMIT 1`
	return r.getOne(ctx, "номинанта", wallet, query)
}

func (r *postgresVaultRepository) getOne(ctx context.Context, role, wallet, query string) (*models.Vault, error) {
	var vault models.Vault

	err := r.db.GetContext(ctx, &vault, query, wallet)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[VaultRepo] Хранилище для %s '%s' не найдено", role, wallet)
			return nil, ErrVaultNotFound
		}
		log.Printf("[VaultRepo] Ошибка при поиске хранилища для %s '%s': %v", role, wallet, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение хранилища: %w", wrapConnErr(err))
	}

	return &vault, nil
}

// UpdateVault записывает изменяемые поля хранилища, если версия в БД совпадает с expectedVersion.
// При несовпадении возвращает ErrVersionConflict, и ни запись, ни событие не сохраняются.
// При успехе vault.Version увеличивается на единицу.
func (r *postgresVaultRepository) UpdateVault(
	ctx context.Context,
	vault *models.Vault,
	expectedVersion int64,
	event *models.VaultEvent,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		log.Printf("[VaultRepo] Ошибка начала транзакции для '%s': %v", vault.Owner, err)
		return fmt.Errorf("ошибка начала транзакции: %w", wrapConnErr(err))
	}
	defer rollback(tx)

	query := `UPDATE vaults SET status=$1, last_heartbeat_at=$2, cooldown_started_at=$3, transferred_at=$4,
	          votes=$5, updated_at=$6, version=version+1
	          WHERE owner_wallet=$7 AND version=$8`
	res, err := tx.ExecContext(ctx, query,
		vault.Status, vault.LastHeartbeatAt, vault.CooldownStartedAt, vault.TransferredAt,
		vault.Votes, vault.UpdatedAt, vault.Owner, expectedVersion,
	)
	if err != nil {
		log.Printf("[VaultRepo] Ошибка обновления хранилища '%s': %v", vault.Owner, err)
		return fmt.Errorf("ошибка выполнения запроса на обновление хранилища: %w", wrapConnErr(err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		log.Printf("[VaultRepo] Ошибка получения количества обновленных строк для '%s': %v", vault.Owner, err)
		return fmt.Errorf("ошибка получения результата обновления: %w", err)
	}
	if rowsAffected == 0 {
		log.Printf("[VaultRepo] Конфликт версий для '%s' (ожидалась версия %d)", vault.Owner, expectedVersion)
		return ErrVersionConflict
	}

	if event != nil {
		if err = insertEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[VaultRepo] Ошибка фиксации транзакции обновления '%s': %v", vault.Owner, err)
		return fmt.Errorf("ошибка фиксации транзакции: %w", wrapConnErr(err))
	}

	vault.Version = expectedVersion + 1
	log.Printf("[VaultRepo] Хранилище '%s' обновлено до версии %d (статус: %s)",
		vault.Owner, vault.Version, vault.Status)
	return nil
}

// rollback откатывает транзакцию, если она еще не зафиксирована.
func rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Printf("[VaultRepo] Ошибка отката транзакции: %v", err)
	}
}
