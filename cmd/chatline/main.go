package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/chatline/internal/app"
	"github.com/matheus3301/chatline/internal/profile"
	"github.com/matheus3301/chatline/internal/tui"
	"go.uber.org/fx"
)

const (
	startTimeout = 15 * time.Second
	stopTimeout  = 10 * time.Second
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	linkFlag := flag.String("link", "", "deep link selecting the chat to open")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(name, *linkFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(name, link string) error {
	var h *app.Handle
	fxApp := fx.New(
		app.Module(app.Params{Profile: name, Command: "chatline", Link: link}),
		fx.Populate(&h),
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}

	ui := tui.NewApp(h, name)
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stopSignals()
	go func() {
		<-sigCtx.Done()
		ui.Stop()
	}()

	runErr := ui.Run()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
