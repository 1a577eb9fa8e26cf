package repository

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"github.com/devxaves/lifeline-protocol/internal/models"
)

// VaultEventRepository определяет методы для чтения журнала событий хранилищ.
// Запись событий выполняет VaultRepository в транзакции изменения.
type VaultEventRepository interface {
	ListEventsByOwner(ctx context.Context, owner string, limit, offset int) ([]models.VaultEvent, error)
}

// postgresVaultEventRepository реализует VaultEventRepository для PostgreSQL.
type postgresVaultEventRepository struct {
	db *sqlx.DB
}

// NewPostgresVaultEventRepository создает новый экземпляр репозитория событий.
func NewPostgresVaultEventRepository(db *sqlx.DB) VaultEventRepository {
	return &postgresVaultEventRepository{db: db}
}

// ListEventsByOwner возвращает события хранилища владельца с пагинацией.
func (r *postgresVaultEventRepository) ListEventsByOwner(
	ctx context.Context,
	owner string,
	limit,
	offset int,
) ([]models.VaultEvent, error) {
	// Сначала новые; id разрешает совпадения по времени
	query := `SELECT id, vault_id, owner_wallet, kind, actor_wallet, detail, created_at
	          FROM vault_events
	          WHERE owner_wallet=$1
	          ORDER BY created_at DESC, id DESC
	          LIMIT $2 OFFSET $3`

	events := []models.VaultEvent{}
	err := r.db.SelectContext(ctx, &events, query, owner, limit, offset)
	if err != nil {
		log.Printf("[VaultEventRepo] Ошибка при получении событий для '%s': %v", owner, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение событий: %w", wrapConnErr(err))
	}

	log.Printf("[VaultEventRepo] Получено %d событий для '%s' (limit=%d, offset=%d)",
		len(events), owner, limit, offset)
	return events, nil
}

// insertEvent добавляет запись в журнал в рамках переданной транзакции.
func insertEvent(ctx context.Context, tx *sqlx.Tx, event *models.VaultEvent) error {
	query := `INSERT INTO vault_events (vault_id, owner_wallet, kind, actor_wallet, detail, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := tx.QueryRowxContext(ctx, query,
		event.VaultID, event.Owner, event.Kind, event.Actor, event.Detail, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		log.Printf("[VaultEventRepo] Ошибка записи события '%s' для '%s': %v", event.Kind, event.Owner, err)
		return fmt.Errorf("ошибка выполнения запроса на запись события: %w", wrapConnErr(err))
	}
	return nil
}
