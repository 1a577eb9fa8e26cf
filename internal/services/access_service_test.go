package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/devxaves/lifeline-protocol/internal/models"
	"github.com/devxaves/lifeline-protocol/internal/repository"
	"github.com/devxaves/lifeline-protocol/internal/services"
)

func TestAccessService_ResolveRole(t *testing.T) {
	ctx := context.Background()
	ownVault := &models.Vault{Owner: "0xa"}
	otherVault := &models.Vault{Owner: "0xb"}

	tests := []struct {
		name      string
		setup     func(m *MockVaultRepository)
		wantRole  models.Role
		wantOwner string
		wantKind  services.Kind
	}{
		{
			name: "Владелец имеет приоритет над остальными ролями",
			setup: func(m *MockVaultRepository) {
				m.On("GetVaultByOwner", mock.Anything, "0xa").Return(ownVault, nil)
			},
			wantRole:  models.RoleOwner,
			wantOwner: "0xa",
		},
		{
			name: "Доверенное лицо имеет приоритет над номинантом",
			setup: func(m *MockVaultRepository) {
				m.On("GetVaultByOwner", mock.Anything, "0xa").Return(nil, repository.ErrVaultNotFound)
				m.On("FindVaultByTrustee", mock.Anything, "0xa").Return(otherVault, nil)
			},
			wantRole:  models.RoleTrustee,
			wantOwner: "0xb",
		},
		{
			name: "Номинант",
			setup: func(m *MockVaultRepository) {
				m.On("GetVaultByOwner", mock.Anything, "0xa").Return(nil, repository.ErrVaultNotFound)
				m.On("FindVaultByTrustee", mock.Anything, "0xa").Return(nil, repository.ErrVaultNotFound)
				m.On("FindVaultByNominee", mock.Anything, "0xa").Return(otherVault, nil)
			},
			wantRole:  models.RoleNominee,
			wantOwner: "0xb",
		},
		{
			name: "Кошелек не связан ни с одним хранилищем",
			setup: func(m *MockVaultRepository) {
				m.On("GetVaultByOwner", mock.Anything, "0xa").Return(nil, repository.ErrVaultNotFound)
				m.On("FindVaultByTrustee", mock.Anything, "0xa").Return(nil, repository.ErrVaultNotFound)
				m.On("FindVaultByNominee", mock.Anything, "0xa").Return(nil, repository.ErrVaultNotFound)
			},
			wantKind: services.KindNotFound,
		},
		{
			name: "Ошибка БД прерывает поиск",
			setup: func(m *MockVaultRepository) {
				m.On("GetVaultByOwner", mock.Anything, "0xa").Return(nil, repository.ErrVaultNotFound)
				m.On("FindVaultByTrustee", mock.Anything, "0xa").
					Return(nil, fmt.Errorf("%w: connection reset", repository.ErrUnavailable))
			},
			wantKind: services.KindUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockVaultRepository)
			tt.setup(repo)
			access := services.NewAccessService(repo)

			vault, role, err := access.ResolveRole(ctx, " 0xa ")
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, services.KindOf(err))
				assert.Nil(t, vault)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantRole, role)
				assert.Equal(t, tt.wantOwner, vault.Owner)
			}
			repo.AssertExpectations(t)
		})
	}

	t.Run("Пустой кошелек", func(t *testing.T) {
		repo := new(MockVaultRepository)
		_, _, err := services.NewAccessService(repo).ResolveRole(ctx, "  ")
		assert.ErrorIs(t, err, services.ErrValidation)
		repo.AssertNotCalled(t, "GetVaultByOwner", mock.Anything, mock.Anything)
	})
}

func TestAccessService_EarliestVaultPerTier(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	first := validInput("0xshared")
	first.Owner = "0xfirst"
	_, err := env.svc.CreateVault(ctx, first)
	require.NoError(t, err)

	env.clock.Advance(1)
	second := validInput("0xshared")
	second.Owner = "0xsecond"
	_, err = env.svc.CreateVault(ctx, second)
	require.NoError(t, err)

	view, err := env.svc.GetVault(ctx, "0xshared")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTrustee, view.UserRole)
	assert.Equal(t, "0xfirst", view.Owner)
}

func TestCapabilities(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.Capability{models.CapHeartbeat, models.CapStartCooldown, models.CapDownloadRelease},
		services.Capabilities(models.RoleOwner))
	assert.ElementsMatch(t,
		[]models.Capability{models.CapVote, models.CapStartCooldown, models.CapConfirmDeath},
		services.Capabilities(models.RoleTrustee))
	assert.ElementsMatch(t,
		[]models.Capability{models.CapConfirmDeath, models.CapDownloadRelease},
		services.Capabilities(models.RoleNominee))
	assert.Nil(t, services.Capabilities(models.Role("stranger")))
}

func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("обертка: %w", &services.Error{Kind: services.KindForbidden, Message: "нет доступа"})

	assert.ErrorIs(t, wrapped, services.ErrForbidden)
	assert.NotErrorIs(t, wrapped, services.ErrNotFound)
	assert.Equal(t, services.KindForbidden, services.KindOf(wrapped))
	assert.Equal(t, services.KindInternal, services.KindOf(errors.New("что-то сломалось")))

	withCause := &services.Error{Kind: services.KindUnavailable, Message: "недоступно", Err: repository.ErrUnavailable}
	assert.Equal(t, "недоступно: хранилище данных недоступно", withCause.Error())
	assert.ErrorIs(t, withCause, repository.ErrUnavailable)
}
