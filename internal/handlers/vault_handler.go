package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/devxaves/lifeline-protocol/internal/middleware"
	"github.com/devxaves/lifeline-protocol/internal/models"
	"github.com/devxaves/lifeline-protocol/internal/services"
)

const maxBodyBytes = 1 << 20

// VaultHandler обрабатывает HTTP-запросы, связанные с хранилищем.
type VaultHandler struct {
	vaultService services.VaultService
}

// NewVaultHandler создает новый экземпляр VaultHandler.
func NewVaultHandler(vs services.VaultService) *VaultHandler {
	return &VaultHandler{vaultService: vs}
}

// Create обрабатывает POST запрос на создание хранилища. Владелец - вызывающий кошелек.
func (h *VaultHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:Create"
	owner, ok := callerWallet(w, r, op)
	if !ok {
		return
	}

	var req models.CreateVaultRequest
	if !decodeBody(w, r, op, &req) {
		return
	}

	vaultID, err := h.vaultService.CreateVault(r.Context(), services.CreateVaultInput{
		Owner:                 owner,
		Nominee:               req.NomineeWallet,
		Trustees:              req.Trustees,
		HeartbeatIntervalDays: req.HeartbeatInterval,
		CooldownPeriodDays:    req.CooldownPeriod,
		AssetType:             req.AssetType,
		Amount:                req.Amount,
	})
	if err != nil {
		writeError(w, op, err)
		return
	}

	log.Printf("[%s] Хранилище %s создано для '%s'", op, vaultID, owner)
	writeJSON(w, http.StatusCreated, models.CreateVaultResponse{Success: true, VaultID: vaultID})
}

// Get обрабатывает GET запрос на получение хранилища для кошелька из пути.
func (h *VaultHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:Get"
	wallet := chi.URLParam(r, "wallet")

	view, err := h.vaultService.GetVault(r.Context(), wallet)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Heartbeat обрабатывает POST запрос владельца, подтверждающего, что он жив.
func (h *VaultHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:Heartbeat"
	owner, ok := callerWallet(w, r, op)
	if !ok {
		return
	}

	if err := h.vaultService.Heartbeat(r.Context(), owner); err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
}

// Vote обрабатывает POST запрос доверенного лица с голосом о статусе владельца.
func (h *VaultHandler) Vote(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:Vote"
	trustee, ok := callerWallet(w, r, op)
	if !ok {
		return
	}

	var req models.VoteRequest
	if !decodeBody(w, r, op, &req) {
		return
	}
	choice, err := models.ParseVoteChoice(req.Vote)
	if err != nil {
		writeBadRequest(w, op, "Недопустимый вариант голоса: "+req.Vote)
		return
	}

	if err = h.vaultService.CastVote(r.Context(), trustee, req.OwnerWallet, choice); err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
}

// StartCooldown обрабатывает POST запрос на ручной запуск периода ожидания.
func (h *VaultHandler) StartCooldown(w http.ResponseWriter, r *http.Request) {
	h.ownerAction(w, r, "VaultHandler:StartCooldown", h.vaultService.StartCooldown)
}

// ConfirmDeath обрабатывает POST запрос на завершение передачи активов.
func (h *VaultHandler) ConfirmDeath(w http.ResponseWriter, r *http.Request) {
	h.ownerAction(w, r, "VaultHandler:ConfirmDeath", h.vaultService.ConfirmDeath)
}

func (h *VaultHandler) ownerAction(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	action func(ctx context.Context, actor, owner string) error,
) {
	actor, ok := callerWallet(w, r, op)
	if !ok {
		return
	}

	var req models.OwnerRequest
	if !decodeBody(w, r, op, &req) {
		return
	}
	if req.OwnerWallet == "" {
		writeBadRequest(w, op, "Не указан ownerWallet")
		return
	}

	if err := action(r.Context(), actor, req.OwnerWallet); err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
}

// ListEvents обрабатывает GET запрос участника хранилища на получение журнала событий.
func (h *VaultHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:ListEvents"
	actor, ok := callerWallet(w, r, op)
	if !ok {
		return
	}
	owner := chi.URLParam(r, "wallet")

	// Простая пагинация без строгой валидации
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > services.MaxEventsLimit {
		limit = services.DefaultEventsLimit
	}
	if offset < 0 {
		offset = 0
	}

	events, err := h.vaultService.ListEvents(r.Context(), actor, owner, limit, offset)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// DownloadRelease отдает JSON-запись о передаче активов владельцу или номинанту.
func (h *VaultHandler) DownloadRelease(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:DownloadRelease"
	actor, ok := callerWallet(w, r, op)
	if !ok {
		return
	}
	owner := chi.URLParam(r, "wallet")

	rc, err := h.vaultService.DownloadRelease(r.Context(), actor, owner)
	if err != nil {
		writeError(w, op, err)
		return
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Printf("[%s] Ошибка закрытия записи о передаче: %v", op, closeErr)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="release.json"`)
	if _, err = io.Copy(w, rc); err != nil {
		log.Printf("[%s] Ошибка копирования записи о передаче для '%s': %v", op, owner, err)
	}
}

// callerWallet достает кошелек, положенный middleware.Identity.
func callerWallet(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	wallet, ok := middleware.GetWalletFromContext(r.Context())
	if !ok {
		log.Printf("[%s] Не удалось получить кошелек из контекста", op)
		middleware.WriteUnauthenticated(w)
		return "", false
	}
	return wallet, true
}

// decodeBody разбирает JSON тело запроса; при ошибке отправляет 400.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, op, "Неверный формат запроса")
		return false
	}
	return true
}
