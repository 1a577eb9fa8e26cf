package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/devxaves/lifeline-protocol/internal/api"
	"github.com/devxaves/lifeline-protocol/internal/models"
)

// clientConfig - параметры подключения к серверу.
type clientConfig struct {
	ServerURL string
	Wallet    string
}

func newClient(cfg clientConfig) api.Client {
	c := api.NewHTTPClient(cfg.ServerURL)
	c.SetWallet(cfg.Wallet)
	return c
}

type command struct {
	name string
	help string
	run  func(ctx context.Context, c api.Client, _ clientConfig, args []string, out io.Writer) error
}

//nolint:gochecknoglobals // Таблица подкоманд
var commands = []command{
	{"status", "[кошелек] - хранилище и роль кошелька (по умолчанию текущего)", cmdStatus},
	{"create", "создать хранилище, владелец - текущий кошелек", cmdCreate},
	{"heartbeat", "подтвердить, что владелец жив", cmdHeartbeat},
	{"vote", "<владелец> <alive|unavailable|dead|unknown> - голос доверенного лица", cmdVote},
	{"start-cooldown", "<владелец> - запустить период ожидания", cmdStartCooldown},
	{"confirm-death", "<владелец> - подтвердить передачу активов", cmdConfirmDeath},
	{"events", "<владелец> - журнал событий хранилища", cmdEvents},
	{"release", "<владелец> - скачать запись о передаче активов", cmdRelease},
}

func cmdStatus(ctx context.Context, c api.Client, cfg clientConfig, args []string, out io.Writer) error {
	wallet := cfg.Wallet
	if len(args) > 0 {
		wallet = args[0]
	}
	if wallet == "" {
		return fmt.Errorf("%w: укажите кошелек", errUsage)
	}
	view, err := c.GetVault(ctx, wallet)
	if err != nil {
		return err
	}
	return printJSON(out, view)
}

func cmdCreate(ctx context.Context, c api.Client, _ clientConfig, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	nominee := fs.String("nominee", "", "Кошелек номинанта")
	trustees := fs.String("trustees", "", "Кошельки доверенных лиц через запятую (1-5)")
	interval := fs.Int("interval", 30, "Интервал heartbeat в днях")
	cooldown := fs.Int("cooldown", 15, "Период ожидания в днях")
	asset := fs.String("asset", "", "Тип актива")
	amount := fs.String("amount", "0", "Количество актива")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsedAmount, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("%w: неверное количество %q", errUsage, *amount)
	}

	id, err := c.CreateVault(ctx, models.CreateVaultRequest{
		NomineeWallet:     *nominee,
		Trustees:          strings.Split(*trustees, ","),
		HeartbeatInterval: *interval,
		CooldownPeriod:    *cooldown,
		AssetType:         *asset,
		Amount:            parsedAmount,
	})
	if err != nil {
		return err
	}
	return printJSON(out, models.CreateVaultResponse{Success: true, VaultID: id})
}

func cmdHeartbeat(ctx context.Context, c api.Client, _ clientConfig, _ []string, out io.Writer) error {
	if err := c.Heartbeat(ctx); err != nil {
		return err
	}
	return printJSON(out, models.SuccessResponse{Success: true})
}

func cmdVote(ctx context.Context, c api.Client, _ clientConfig, args []string, out io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: ожидается <владелец> <голос>", errUsage)
	}
	choice, err := models.ParseVoteChoice(args[1])
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if err = c.CastVote(ctx, args[0], choice); err != nil {
		return err
	}
	return printJSON(out, models.SuccessResponse{Success: true})
}

func cmdStartCooldown(ctx context.Context, c api.Client, _ clientConfig, args []string, out io.Writer) error {
	return ownerCommand(ctx, args, out, c.StartCooldown)
}

func cmdConfirmDeath(ctx context.Context, c api.Client, _ clientConfig, args []string, out io.Writer) error {
	return ownerCommand(ctx, args, out, c.ConfirmDeath)
}

func ownerCommand(
	ctx context.Context,
	args []string,
	out io.Writer,
	action func(ctx context.Context, owner string) error,
) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: ожидается <владелец>", errUsage)
	}
	if err := action(ctx, args[0]); err != nil {
		return err
	}
	return printJSON(out, models.SuccessResponse{Success: true})
}

func cmdEvents(ctx context.Context, c api.Client, _ clientConfig, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "Сколько событий вернуть (по умолчанию решает сервер)")
	offset := fs.Int("offset", 0, "Смещение")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: ожидается <владелец>", errUsage)
	}

	events, err := c.ListEvents(ctx, fs.Arg(0), *limit, *offset)
	if err != nil {
		return err
	}
	return printJSON(out, events)
}

func cmdRelease(ctx context.Context, c api.Client, _ clientConfig, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: ожидается <владелец>", errUsage)
	}
	rc, err := c.DownloadRelease(ctx, args[0])
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(out, rc)
	return err
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
