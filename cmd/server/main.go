package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/devxaves/lifeline-protocol/internal/handlers"
	appmiddleware "github.com/devxaves/lifeline-protocol/internal/middleware"
	"github.com/devxaves/lifeline-protocol/internal/repository"
	"github.com/devxaves/lifeline-protocol/internal/services"
	"github.com/devxaves/lifeline-protocol/internal/storage"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	startupTimeout         = 30 * time.Second
)

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	db           *sqlx.DB
	vaultHandler *handlers.VaultHandler
}

// main - точка входа. Вызывает run и обрабатывает ошибку.
func main() {
	if err := run(); err != nil {
		log.Printf("Ошибка выполнения сервера: %v", err)
		os.Exit(1)
	}
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run() error {
	log.Println("Запуск сервера Lifeline...")

	cfg, err := parseFlags()
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := setupDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	// Пул соединений закрывается после остановки HTTP-сервера
	defer func() {
		if closeErr := deps.db.Close(); closeErr != nil {
			log.Printf("Ошибка закрытия соединения с БД: %v", closeErr)
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      setupRouter(deps.vaultHandler),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.TLSEnabled() {
			log.Printf("Запуск HTTPS-сервера на порту %s (сертификат: %s)", cfg.Port, cfg.CertFile)
			serveErr <- server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
			return
		}
		log.Printf("Запуск HTTP-сервера на порту %s", cfg.Port)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка запуска сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Println("Получен сигнал завершения, останавливаем сервер...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	log.Println("Сервер остановлен.")
	return nil
}

// setupDependencies инициализирует и возвращает все необходимые зависимости сервера.
func setupDependencies(ctx context.Context, cfg *config) (*dependencies, error) {
	deps := &dependencies{}

	// 1. Подключение к БД
	dsn, err := repository.BuildDSN(cfg.DatabaseURI, cfg.DatabaseName)
	if err != nil {
		return nil, err
	}
	deps.db, err = repository.NewPostgresDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации БД: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if err = repository.EnsureSchema(startCtx, deps.db); err != nil {
		closeDB(deps.db)
		return nil, err
	}

	// 2. Инициализация клиента MinIO
	minioClient, err := storage.NewMinioClient(startCtx, storage.MinioConfig{
		Endpoint:        cfg.MinioEndpoint,
		AccessKeyID:     cfg.MinioUser,
		SecretAccessKey: cfg.MinioPassword,
		UseSSL:          cfg.MinioUseSSL,
		BucketName:      cfg.MinioBucket,
	})
	if err != nil {
		closeDB(deps.db)
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	// 3. Репозитории, сервисы, обработчики
	vaultRepo := repository.NewPostgresVaultRepository(deps.db)
	eventRepo := repository.NewPostgresVaultEventRepository(deps.db)
	vaultService := services.NewVaultService(vaultRepo, eventRepo, storage.NewReleaseArchive(minioClient))
	deps.vaultHandler = handlers.NewVaultHandler(vaultService)

	return deps, nil
}

func closeDB(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("Ошибка закрытия соединения с БД: %v", err)
	}
}

// setupRouter настраивает и возвращает роутер chi.
func setupRouter(vaultHandler *handlers.VaultHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	r.Route("/api", func(r chi.Router) {
		// Публичное чтение
		r.Get("/vault/{wallet}", vaultHandler.Get)

		// Маршруты, которым нужен кошелек вызывающего
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Identity)

			r.Post("/vault", vaultHandler.Create)
			r.Post("/vault/heartbeat", vaultHandler.Heartbeat)
			r.Post("/vault/start-cooldown", vaultHandler.StartCooldown)
			r.Post("/vault/confirm-death", vaultHandler.ConfirmDeath)
			r.Get("/vault/{wallet}/events", vaultHandler.ListEvents)
			r.Get("/vault/{wallet}/release", vaultHandler.DownloadRelease)
			r.Post("/trustee/vote", vaultHandler.Vote)
		})
	})
	return r
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
