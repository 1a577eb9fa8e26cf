package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devxaves/lifeline-protocol/internal/models"
	"github.com/devxaves/lifeline-protocol/internal/repository"
)

var vaultRowColumns = []string{
	"id", "owner_wallet", "nominee_wallet", "trustees", "status", "heartbeat_interval_days",
	"cooldown_period_days", "asset_type", "amount", "last_heartbeat_at", "cooldown_started_at", "transferred_at",
	"votes", "created_at", "updated_at", "version",
}

var (
	insertVaultQuery = regexp.QuoteMeta(`INSERT INTO vaults (`)
	insertEventQuery = regexp.QuoteMeta(`INSERT INTO vault_events (`)
	updateVaultQuery = regexp.QuoteMeta(`UPDATE vaults SET status=$1`)
)

func TestNewPostgresVaultRepository(t *testing.T) {
	// Можно передать nil
	repo := repository.NewPostgresVaultRepository(nil)
	assert.NotNil(t, repo)
}

// Вспомогательная функция для создания мока БД и репозитория хранилищ.
func setupVaultRepoMock(t *testing.T) (repository.VaultRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewPostgresVaultRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func testVault(now time.Time) *models.Vault {
	return &models.Vault{
		ID:                    uuid.MustParse("6f1c3a4e-9a57-4d2b-8a0a-3c8a2f0e1b11"),
		Owner:                 "0xowner",
		Nominee:               "0xnominee",
		Trustees:              pq.StringArray{"0xt1", "0xt2"},
		Status:                models.StatusActive,
		HeartbeatIntervalDays: 30,
		CooldownPeriodDays:    15,
		AssetType:             "APT",
		Amount:                decimal.RequireFromString("100.5"),
		LastHeartbeatAt:       now,
		Votes:                 models.Votes{},
		CreatedAt:             now,
		UpdatedAt:             now,
		Version:               1,
	}
}

func vaultRow(v *models.Vault) *sqlmock.Rows {
	votes, _ := v.Votes.Value()
	return sqlmock.NewRows(vaultRowColumns).AddRow(
		v.ID.String(), v.Owner, v.Nominee, "{0xt1,0xt2}", v.Status.String(), v.HeartbeatIntervalDays,
		v.CooldownPeriodDays, v.AssetType, v.Amount.String(), v.LastHeartbeatAt, nil, nil,
		votes, v.CreatedAt, v.UpdatedAt, v.Version,
	)
}

func TestCreateVault(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock, v *models.Vault)
		expectedErr error
	}{
		{
			name: "Успешное создание",
			mockSetup: func(mock sqlmock.Sqlmock, v *models.Vault) {
				mock.ExpectBegin()
				mock.ExpectExec(insertVaultQuery).
					WithArgs(v.ID, v.Owner, v.Nominee, sqlmock.AnyArg(), "active", 30, 15, "APT",
						sqlmock.AnyArg(), now, nil, nil, "[]", now, now, int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(insertEventQuery).
					WithArgs(v.ID, v.Owner, "created", v.Owner, "", now).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
				mock.ExpectCommit()
			},
		},
		{
			name: "Владелец уже имеет хранилище",
			mockSetup: func(mock sqlmock.Sqlmock, _ *models.Vault) {
				mock.ExpectBegin()
				mock.ExpectExec(insertVaultQuery).WillReturnError(&pq.Error{Code: "23505"})
				mock.ExpectRollback()
			},
			expectedErr: repository.ErrVaultExists,
		},
		{
			name: "Ошибка базы данных",
			mockSetup: func(mock sqlmock.Sqlmock, _ *models.Vault) {
				mock.ExpectBegin()
				mock.ExpectExec(insertVaultQuery).WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			expectedErr: errors.New("ошибка выполнения запроса на создание хранилища"),
		},
		{
			name: "Ошибка записи события откатывает создание",
			mockSetup: func(mock sqlmock.Sqlmock, _ *models.Vault) {
				mock.ExpectBegin()
				mock.ExpectExec(insertVaultQuery).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(insertEventQuery).WillReturnError(errors.New("constraint"))
				mock.ExpectRollback()
			},
			expectedErr: errors.New("ошибка выполнения запроса на запись события"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupVaultRepoMock(t)
			v := testVault(now)
			tt.mockSetup(mock, v)

			err := repo.CreateVault(context.Background(), v)

			if tt.expectedErr == nil {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				if errors.Is(tt.expectedErr, repository.ErrVaultExists) {
					assert.ErrorIs(t, err, repository.ErrVaultExists)
				} else {
					assert.Contains(t, err.Error(), tt.expectedErr.Error())
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "Не все ожидания мока были выполнены")
		})
	}
}

func TestGetVaultByOwner(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	query := regexp.QuoteMeta(`FROM vaults WHERE owner_wallet=$1`)

	t.Run("Успешный поиск", func(t *testing.T) {
		repo, mock := setupVaultRepoMock(t)
		expected := testVault(now)
		mock.ExpectQuery(query).WithArgs("0xowner").WillReturnRows(vaultRow(expected))

		vault, err := repo.GetVaultByOwner(context.Background(), "0xowner")
		require.NoError(t, err)
		assert.Equal(t, expected.ID, vault.ID)
		assert.Equal(t, expected.Owner, vault.Owner)
		assert.Equal(t, []string{"0xt1", "0xt2"}, []string(vault.Trustees))
		assert.Equal(t, models.StatusActive, vault.Status)
		assert.True(t, expected.Amount.Equal(vault.Amount))
		assert.Empty(t, vault.Votes)
		assert.Nil(t, vault.CooldownStartedAt)
		assert.Equal(t, int64(1), vault.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Хранилище не найдено", func(t *testing.T) {
		repo, mock := setupVaultRepoMock(t)
		mock.ExpectQuery(query).WithArgs("0xnobody").WillReturnError(sql.ErrNoRows)

		vault, err := repo.GetVaultByOwner(context.Background(), "0xnobody")
		assert.Nil(t, vault)
		assert.ErrorIs(t, err, repository.ErrVaultNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Сеть недоступна", func(t *testing.T) {
		repo, mock := setupVaultRepoMock(t)
		netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		mock.ExpectQuery(query).WithArgs("0xowner").WillReturnError(netErr)

		_, err := repo.GetVaultByOwner(context.Background(), "0xowner")
		assert.ErrorIs(t, err, repository.ErrUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindVaultByRole(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("Поиск по доверенному лицу", func(t *testing.T) {
		repo, mock := setupVaultRepoMock(t)
		query := regexp.QuoteMeta(`WHERE $1 = ANY(trustees) ORDER BY created_at LIMIT 1`)
		mock.ExpectQuery(query).WithArgs("0xt1").WillReturnRows(vaultRow(testVault(now)))

		vault, err := repo.FindVaultByTrustee(context.Background(), "0xt1")
		require.NoError(t, err)
		assert.Equal(t, "0xowner", vault.Owner)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Поиск по номинанту", func(t *testing.T) {
		repo, mock := setupVaultRepoMock(t)
		query := regexp.QuoteMeta(`WHERE nominee_wallet=$1 ORDER BY created_at LIMIT 1`)
		mock.ExpectQuery(query).WithArgs("0xstranger").WillReturnError(sql.ErrNoRows)

		_, err := repo.FindVaultByNominee(context.Background(), "0xstranger")
		assert.ErrorIs(t, err, repository.ErrVaultNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateVault(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	newEvent := func(v *models.Vault) *models.VaultEvent {
		return &models.VaultEvent{
			VaultID: v.ID, Owner: v.Owner, Kind: models.EventHeartbeat, Actor: v.Owner, CreatedAt: now,
		}
	}

	t.Run("Успешное обновление увеличивает версию", func(t *testing.T) {
		repo, mock := setupVaultRepoMock(t)
		v := testVault(now)
		event := newEvent(v)

		mock.ExpectBegin()
		mock.ExpectExec(updateVaultQuery).
			WithArgs("active", now, nil, nil, "[]", now, "0xowner", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(insertEventQuery).
			WithArgs(v.ID, "0xowner", "heartbeat", "0xowner", "", now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
		mock.ExpectCommit()

		err := repo.UpdateVault(context.Background(), v, 3, event)
		require.NoError(t, err)
		assert.Equal(t, int64(4), v.Version)
		assert.Equal(t, int64(42), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Конфликт версий", func(t *testing.T) {
		repo, mock := setupVaultRepoMock(t)
		v := testVault(now)

		mock.ExpectBegin()
		mock.ExpectExec(updateVaultQuery).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.UpdateVault(context.Background(), v, 7, newEvent(v))
		assert.ErrorIs(t, err, repository.ErrVersionConflict)
		assert.Equal(t, int64(1), v.Version, "версия не должна меняться при конфликте")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ошибка фиксации транзакции", func(t *testing.T) {
		repo, mock := setupVaultRepoMock(t)
		v := testVault(now)

		mock.ExpectBegin()
		mock.ExpectExec(updateVaultQuery).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(insertEventQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
		mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

		err := repo.UpdateVault(context.Background(), v, 1, newEvent(v))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка фиксации транзакции")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
