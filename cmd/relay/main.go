package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostelrelay/internal/app"
	"hostelrelay/internal/config"
)

func main() {
	var (
		cfgPath string
		envFile string
		test    bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before env overrides (missing is fine)")
	flag.BoolVar(&test, "test", false, "send the test message and exit")
	flag.Parse()

	cfg, err := config.Load(cfgPath, envFile)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if test {
		res := a.TestConnection(context.Background())
		_ = a.Stop(context.Background())
		if !res.OK {
			fmt.Println("test message failed:", res.Reason)
			os.Exit(1)
		}
		fmt.Println("test message sent")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		_ = a.Stop(context.Background())
		os.Exit(1)
	}

	<-a.Done()
	runErr := a.Err()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if runErr != nil {
		fmt.Println("fatal:", runErr)
		os.Exit(1)
	}
}
