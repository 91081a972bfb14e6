package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prowarehouse/macos-utilities/internal/cmd"
	"github.com/prowarehouse/macos-utilities/internal/contextual"
	"github.com/prowarehouse/macos-utilities/internal/system"
)

func main() {
	sys, err := system.Scan()
	if err != nil {
		panic(fmt.Errorf("cannot identify system: %w", err))
	}
	p := sys.Product()
	if p == nil {
		panic("no product associated with identified system")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = contextual.WithProduct(ctx, p)

	err = cmd.MainCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
