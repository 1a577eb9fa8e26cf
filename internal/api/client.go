package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/devxaves/lifeline-protocol/internal/middleware"
	"github.com/devxaves/lifeline-protocol/internal/models"
)

const defaultTimeout = 30 * time.Second

// ErrIdentity сигнализирует, что сервер не принял кошелек вызывающего (401).
var ErrIdentity = errors.New("не указан кошелек вызывающего")

// Error - ошибка, которую вернул сервер, с классом из тела ответа.
type Error struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *Error) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("ошибка сервера: статус %d", e.StatusCode)
	}
	return fmt.Sprintf("ошибка сервера (%s, статус %d): %s", e.Kind, e.StatusCode, e.Message)
}

// Client определяет интерфейс для взаимодействия с API сервера lifeline.
type Client interface {
	// CreateVault создает хранилище, владельцем которого становится текущий кошелек.
	CreateVault(ctx context.Context, req models.CreateVaultRequest) (uuid.UUID, error)
	// GetVault получает хранилище и роль указанного кошелька.
	GetVault(ctx context.Context, wallet string) (*models.VaultView, error)
	// Heartbeat подтверждает, что владелец жив.
	Heartbeat(ctx context.Context) error
	// CastVote отправляет голос доверенного лица.
	CastVote(ctx context.Context, owner string, choice models.VoteChoice) error
	// StartCooldown запускает период ожидания для хранилища владельца.
	StartCooldown(ctx context.Context, owner string) error
	// ConfirmDeath завершает передачу активов номинанту.
	ConfirmDeath(ctx context.Context, owner string) error
	// ListEvents получает журнал событий хранилища, доступный его участникам.
	ListEvents(ctx context.Context, owner string, limit, offset int) ([]models.VaultEvent, error)
	// DownloadRelease скачивает запись о передаче активов.
	DownloadRelease(ctx context.Context, owner string) (io.ReadCloser, error)
	// SetWallet устанавливает кошелек, от имени которого выполняются запросы.
	SetWallet(wallet string)
}

// httpClient реализует интерфейс Client для взаимодействия с сервером по HTTP.
type httpClient struct {
	baseURL    string       // Базовый URL сервера, например "http://localhost:8080"
	httpClient *http.Client // HTTP клиент для выполнения запросов
	wallet     string       // Значение заголовка X-Wallet-Address
}

// NewHTTPClient создает новый экземпляр API клиента.
func NewHTTPClient(baseURL string) Client {
	return &httpClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SetWallet устанавливает кошелек вызывающего.
func (c *httpClient) SetWallet(wallet string) {
	c.wallet = wallet
}

// CreateVault отправляет запрос на создание хранилища.
func (c *httpClient) CreateVault(ctx context.Context, body models.CreateVaultRequest) (uuid.UUID, error) {
	var resp models.CreateVaultResponse
	if err := c.do(ctx, http.MethodPost, "/api/vault", nil, body, http.StatusCreated, &resp, true); err != nil {
		return uuid.Nil, fmt.Errorf("ошибка создания хранилища: %w", err)
	}
	return resp.VaultID, nil
}

// GetVault получает хранилище глазами указанного кошелька.
func (c *httpClient) GetVault(ctx context.Context, wallet string) (*models.VaultView, error) {
	view := models.VaultView{Vault: &models.Vault{}}
	if err := c.do(ctx, http.MethodGet, "/api/vault/"+url.PathEscape(wallet), nil, nil, http.StatusOK, &view, false); err != nil {
		return nil, fmt.Errorf("ошибка получения хранилища: %w", err)
	}
	return &view, nil
}

// Heartbeat отправляет heartbeat от имени текущего кошелька.
func (c *httpClient) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/vault/heartbeat", nil, nil, http.StatusOK, nil, true); err != nil {
		return fmt.Errorf("ошибка отправки heartbeat: %w", err)
	}
	return nil
}

// CastVote отправляет голос текущего кошелька за хранилище владельца.
func (c *httpClient) CastVote(ctx context.Context, owner string, choice models.VoteChoice) error {
	body := models.VoteRequest{OwnerWallet: owner, Vote: choice.String()}
	if err := c.do(ctx, http.MethodPost, "/api/trustee/vote", nil, body, http.StatusOK, nil, true); err != nil {
		return fmt.Errorf("ошибка отправки голоса: %w", err)
	}
	return nil
}

// StartCooldown запускает период ожидания.
func (c *httpClient) StartCooldown(ctx context.Context, owner string) error {
	body := models.OwnerRequest{OwnerWallet: owner}
	if err := c.do(ctx, http.MethodPost, "/api/vault/start-cooldown", nil, body, http.StatusOK, nil, true); err != nil {
		return fmt.Errorf("ошибка запуска периода ожидания: %w", err)
	}
	return nil
}

// ConfirmDeath подтверждает передачу активов.
func (c *httpClient) ConfirmDeath(ctx context.Context, owner string) error {
	body := models.OwnerRequest{OwnerWallet: owner}
	if err := c.do(ctx, http.MethodPost, "/api/vault/confirm-death", nil, body, http.StatusOK, nil, true); err != nil {
		return fmt.Errorf("ошибка подтверждения передачи: %w", err)
	}
	return nil
}

// ListEvents получает журнал событий хранилища.
func (c *httpClient) ListEvents(ctx context.Context, owner string, limit, offset int) ([]models.VaultEvent, error) {
	// Добавляем параметры пагинации
	query := url.Values{}
	if limit > 0 {
		query.Add("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Add("offset", strconv.Itoa(offset))
	}

	var events []models.VaultEvent
	path := "/api/vault/" + url.PathEscape(owner) + "/events"
	if err := c.do(ctx, http.MethodGet, path, query, nil, http.StatusOK, &events, true); err != nil {
		return nil, fmt.Errorf("ошибка получения событий: %w", err)
	}
	return events, nil
}

// DownloadRelease скачивает запись о передаче. Вызывающая сторона закрывает тело.
func (c *httpClient) DownloadRelease(ctx context.Context, owner string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/vault/"+url.PathEscape(owner)+"/release", nil, nil, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса на скачивание: %w", err)
	}
	// НЕ закрываем resp.Body здесь, вызывающая сторона должна это сделать
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("ошибка скачивания записи о передаче: %w", responseError(resp))
	}
	return resp.Body, nil
}

func (c *httpClient) newRequest(
	ctx context.Context,
	method, path string,
	query url.Values,
	body any,
	withWallet bool,
) (*http.Request, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования URL: %w", err)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonData, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return nil, fmt.Errorf("ошибка кодирования тела запроса: %w", marshalErr)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withWallet {
		if c.wallet == "" {
			return nil, ErrIdentity
		}
		req.Header.Set(middleware.WalletHeader, c.wallet)
	}
	return req, nil
}

// do выполняет JSON запрос и декодирует ответ в out, если он не nil.
func (c *httpClient) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	body any,
	wantStatus int,
	out any,
	withWallet bool,
) error {
	req, err := c.newRequest(ctx, method, path, query, body, withWallet)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ошибка декодирования ответа: %w", err)
	}
	return nil
}

// responseError читает тело ответа с ошибкой.
func responseError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrIdentity
	}
	apiErr := &Error{StatusCode: resp.StatusCode}
	var body models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Kind = body.Kind
		apiErr.Message = body.Error
	}
	return apiErr
}
