package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

const (
	// Имена переменных окружения.
	serverURLEnvVar = "LIFELINE_SERVER_URL"
	walletEnvVar    = "LIFELINE_WALLET"

	defaultServerURL = "http://localhost:8080"
)

// Переменные для версии и даты сборки, устанавливаются через ldflags.
var (
	version = "dev" // Значение по умолчанию, если не установлено при сборке
	//nolint:gochecknoglobals // Устанавливается через ldflags при сборке
	buildDate = "unknown"
	//nolint:gochecknoglobals // Устанавливается через ldflags при сборке
	commitHash = "N/A"
)

var errUsage = errors.New("неверные аргументы")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			log.Printf("Ошибка: %v", err)
		}
		stop()
		os.Exit(1)
	}
}

// run разбирает глобальные флаги и выполняет подкоманду.
func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("lifeline", flag.ContinueOnError)
	serverURL := fs.String("server-url", "", "URL сервера lifeline (переопределяет "+serverURLEnvVar+")")
	wallet := fs.String("wallet", "", "Кошелек вызывающего (переопределяет "+walletEnvVar+")")
	versionFlag := fs.Bool("version", false, "Показать версию и дату сборки")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Использование: lifeline [флаги] <команда> [аргументы]\n\nКоманды:\n")
		for _, c := range commands {
			fmt.Fprintf(fs.Output(), "  %-16s %s\n", c.name, c.help)
		}
		fmt.Fprintf(fs.Output(), "\nФлаги:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *versionFlag {
		fmt.Fprintf(out, "lifeline client\nVersion: %s\nBuild Date: %s\nCommit Hash: %s\n",
			version, buildDate, commitHash)
		return nil
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg := clientConfig{
		ServerURL: firstNonEmpty(*serverURL, os.Getenv(serverURLEnvVar), defaultServerURL),
		Wallet:    firstNonEmpty(*wallet, os.Getenv(walletEnvVar)),
	}

	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, newClient(cfg), cfg, fs.Args()[1:], out)
		}
	}
	fs.Usage()
	return fmt.Errorf("%w: неизвестная команда %q", errUsage, name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
