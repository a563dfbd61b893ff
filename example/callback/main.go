package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/TelemFlow/pkg/telemflow"
)

// printMirror receives every accepted sample; the runtime treats it like any
// other mirror, so a slow Publish only delays that sample's copy.
type printMirror struct{}

func (printMirror) Name() string { return "stdout" }
func (printMirror) Close() error { return nil }

func (printMirror) Publish(s *telemflow.Sample) error {
	fmt.Printf("%s seq=%d values=%v\n", s.Timestamp.Format(time.RFC3339), s.Seq, s.Values)
	return nil
}

func main() {
	flow, err := telemflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	flow.Config().AutoStart = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	onEvent := func(ev telemflow.Event) {
		fmt.Printf("session %s %s %s\n", ev.SessionID, ev.Kind, ev.Reason)
		if ev.Kind == telemflow.EventFault {
			stop()
		}
	}

	if err := flow.Run(ctx,
		telemflow.StreamOutMirror(printMirror{}),
		telemflow.StreamOutCallback(onEvent),
	); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}
