// main.go - Loop principal do jogo
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

	"damas/shared"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	closeLog, err := setupLog(cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		log.Printf("[turn] game aborted: %v", err)
		fmt.Fprintln(os.Stderr, "Jogo interrompido:", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Printf("[turn] %s connecting to %s", cfg.Player, cfg.Server)
	authority, err := Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer authority.Close() // fechar a conexão com o servidor ao encerrar o programa

	input := NewDispatcher()
	ui, err := NewUI(input, cancel)
	if err != nil {
		return err
	}

	game := NewOrchestrator(authority, input, NewBoardStore(shared.DefaultSize),
		WithView(ui), WithRetryPrompter(ui))
	outcome, err := game.Run(ctx)
	if err == nil {
		ui.WaitKey(ctx, "press any key to leave")
	}
	ui.Close()

	if errors.Is(err, context.Canceled) {
		fmt.Println("Jogo encerrado")
		return nil
	}
	if err != nil {
		return err
	}
	human, engine := game.Turns()
	log.Printf("[turn] %s after %d human and %d engine moves", outcome, human, engine)
	fmt.Println("Jogo encerrado:", outcome)
	return nil
}

// setupLog sends the standard logger to path, or nowhere when path is empty,
// so log lines never land on the terminal the board is drawn on.
func setupLog(path string) (func(), error) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if path == "" {
		log.SetOutput(io.Discard)
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return func() { _ = f.Close() }, nil
}
