package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/devxaves/lifeline-protocol/internal/models"
	"github.com/devxaves/lifeline-protocol/internal/repository"
)

// AccessService определяет роль идентичности относительно хранилища.
type AccessService interface {
	ResolveRole(ctx context.Context, identity string) (*models.Vault, models.Role, error)
}

var _ AccessService = (*accessService)(nil)

type accessService struct {
	vaultRepo repository.VaultRepository
}

// NewAccessService создает новый экземпляр сервиса ролей.
func NewAccessService(vaultRepo repository.VaultRepository) AccessService {
	return &accessService{vaultRepo: vaultRepo}
}

// roleLookup - один уровень поиска роли.
type roleLookup struct {
	role models.Role
	find func(ctx context.Context, wallet string) (*models.Vault, error)
}

// ResolveRole ищет идентичность сначала как владельца, затем как доверенное лицо,
// затем как номинанта. Побеждает первое совпадение; на каждом уровне
// рассматривается не более одного хранилища.
func (s *accessService) ResolveRole(ctx context.Context, identity string) (*models.Vault, models.Role, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, "", newError(KindValidation, "не указан кошелек")
	}

	lookups := []roleLookup{
		{role: models.RoleOwner, find: s.vaultRepo.GetVaultByOwner},
		{role: models.RoleTrustee, find: s.vaultRepo.FindVaultByTrustee},
		{role: models.RoleNominee, find: s.vaultRepo.FindVaultByNominee},
	}
	for _, l := range lookups {
		vault, err := l.find(ctx, identity)
		if err == nil {
			log.Printf("[AccessService] Кошелек '%s' определен как %s хранилища '%s'", identity, l.role, vault.Owner)
			return vault, l.role, nil
		}
		if !errors.Is(err, repository.ErrVaultNotFound) {
			log.Printf("[AccessService] Ошибка поиска роли %s для '%s': %v", l.role, identity, err)
			return nil, "", fromRepo(err, identity)
		}
	}

	log.Printf("[AccessService] Для кошелька '%s' хранилище не найдено", identity)
	return nil, "", newError(KindNotFound, "хранилище для кошелька '%s' не найдено", identity)
}

// Capabilities возвращает действия, доступные роли.
func Capabilities(role models.Role) []models.Capability {
	switch role {
	case models.RoleOwner:
		return []models.Capability{models.CapHeartbeat, models.CapStartCooldown, models.CapDownloadRelease}
	case models.RoleTrustee:
		return []models.Capability{models.CapVote, models.CapStartCooldown, models.CapConfirmDeath}
	case models.RoleNominee:
		return []models.Capability{models.CapConfirmDeath, models.CapDownloadRelease}
	default:
		return nil
	}
}
