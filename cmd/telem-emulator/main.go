package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/ghalamif/TelemFlow/internal/adapters/observability"
)

type options struct {
	interval time.Duration
	noise    float64
	seed     int64
}

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "Listen address; point device.port at tcp://<addr>")
	interval := flag.Duration("interval", time.Second, "Frame interval")
	noise := flag.Float64("noise", 0, "Fraction of frames to corrupt (0..1)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random walk seed")
	level := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	logger := observability.NewLogger(os.Stderr, observability.LogConfig{Level: *level, Format: "text"})

	opts := options{interval: *interval, noise: *noise, seed: *seed}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, *addr, opts, logger); err != nil {
		logger.Error("emulator stopped", "err", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, addr string, opts options, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info("emulator listening", "addr", ln.Addr().String(), "interval", opts.interval, "noise", opts.noise)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for n := int64(0); ; n++ {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func(conn net.Conn, seed int64) {
			defer wg.Done()
			defer conn.Close()
			peer := conn.RemoteAddr().String()
			logger.Info("client connected", "peer", peer)
			sent, err := stream(ctx, conn, opts, seed)
			logger.Info("client gone", "peer", peer, "frames", sent, "err", err)
		}(conn, opts.seed+n)
	}
}

// stream writes CRLF-terminated frames until ctx ends or the peer goes away.
func stream(ctx context.Context, conn net.Conn, opts options, seed int64) (int, error) {
	lim := rate.NewLimiter(rate.Every(opts.interval), 1)
	w := newWalker(seed)
	out := bufio.NewWriter(conn)

	sent := 0
	for {
		if err := lim.Wait(ctx); err != nil {
			return sent, nil
		}
		frame := w.next()
		if opts.noise > 0 && w.rng.Float64() < opts.noise {
			frame = w.garble(frame)
		}
		if _, err := out.WriteString(frame + "\r\n"); err != nil {
			return sent, err
		}
		if err := out.Flush(); err != nil {
			return sent, err
		}
		sent++
	}
}
