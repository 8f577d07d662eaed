package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/veridata/trialbridge-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		a.Log.Info("Shutdown signal received")
		a.Shutdown()
	}()

	if err := a.Start(); err != nil {
		a.Log.Error("Server stopped with error", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}
