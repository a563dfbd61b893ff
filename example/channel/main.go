package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/TelemFlow"
)

func main() {
	flow, err := telemflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	flow.Config().AutoStart = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, events, closeEvents := telemflow.NewChannelListener(16)
	defer closeEvents()

	go auditWorker("audit", events)

	if err := flow.Run(ctx, telemflow.StreamOutListener(listener)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

func auditWorker(name string, events <-chan telemflow.Event) {
	for ev := range events {
		fmt.Printf("[%s] %s session=%s reason=%q at %s\n",
			name, ev.Kind, ev.SessionID, ev.Reason, ev.At.Format(time.RFC3339))
	}
}
