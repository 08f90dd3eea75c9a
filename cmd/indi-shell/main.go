// Command indi-shell is an interactive INDI client.
//
// Usage:
//
//	indi-shell [-host localhost:7624] [-reconnect] [-log-level warn] [-protocol-log file]
//
// Type 'help' at the prompt for the command list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/connection"
	"github.com/indi-protocol/indi-go/pkg/log"
)

func main() {
	host := flag.String("host", "localhost:7624", "Server address")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	connectTimeout := flag.Duration("connect-timeout", 5*time.Second, "Dial timeout")
	reconnect := flag.Bool("reconnect", false, "Redial with backoff when the connection drops")
	protocolLog := flag.String("protocol-log", "", "Write a CBOR protocol capture to this file")
	flag.Parse()

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "indi-shell: %v\n", err)
		os.Exit(2)
	}

	sh, err := NewShell()
	if err != nil {
		fmt.Fprintf(os.Stderr, "indi-shell: %v\n", err)
		os.Exit(1)
	}
	// Log output goes through readline so it does not garble the prompt.
	logger := slog.New(slog.NewTextHandler(sh.Stderr(), &slog.HandlerOptions{Level: lvl}))

	config := client.DefaultConfig()
	config.Logger = logger
	config.Transport.ConnectTimeout = *connectTimeout
	if *protocolLog != "" {
		fl, err := log.NewFileLogger(*protocolLog)
		if err != nil {
			sh.Close()
			fmt.Fprintf(os.Stderr, "indi-shell: %v\n", err)
			os.Exit(1)
		}
		defer fl.Close()
		config.Transport.Logger = fl
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dial := func(ctx context.Context) (<-chan struct{}, error) {
		c, err := client.Dial(ctx, *host, config)
		if err != nil {
			return nil, err
		}
		sh.Attach(c)
		if err := c.GetProperties("", ""); err != nil {
			c.Close()
			return nil, err
		}
		fmt.Fprintf(sh.Stdout(), "Connected to %s\n", *host)
		return c.Done(), nil
	}

	sessionEnded := make(chan error, 1)
	if *reconnect {
		mcfg := connection.DefaultConfig()
		mcfg.DialTimeout = *connectTimeout
		mcfg.Logger = logger
		m := connection.NewManager(dial, mcfg)
		m.OnStateChange(func(_, next connection.State) {
			if next == connection.StateReconnecting {
				fmt.Fprintln(sh.Stderr(), "connection lost, reconnecting...")
			}
		})
		go func() { sessionEnded <- m.Run(ctx) }()
	} else {
		dialCtx, dialCancel := context.WithTimeout(ctx, *connectTimeout)
		done, err := dial(dialCtx)
		dialCancel()
		if err != nil {
			sh.Close()
			fmt.Fprintf(os.Stderr, "indi-shell: %v\n", err)
			os.Exit(1)
		}
		go func() {
			<-done
			sessionEnded <- errors.New("server closed the connection")
		}()
	}

	go sh.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	case err := <-sessionEnded:
		fmt.Fprintf(sh.Stderr(), "%v\n", err)
	}
	cancel()
	if c := sh.client.Load(); c != nil {
		c.Close()
	}
	sh.Close()
}
