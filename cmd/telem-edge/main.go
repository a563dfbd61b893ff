package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/ghalamif/TelemFlow"
	"github.com/ghalamif/TelemFlow/internal/adapters/device"
	"github.com/ghalamif/TelemFlow/internal/adapters/recordlog"
)

const banner = `  _       _             __ _
 | |_ ___| |___ _ __   / _| |_____ __ __
 |  _/ -_) / -_) '  \ |  _| / _ \ V  V /
  \__\___|_\___|_|_|_||_| |_\___/\_/\_/
`

func main() {
	if os.Getenv("NO_BANNER") == "" {
		fmt.Print(banner)
		fmt.Println()
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "inspect":
		err = inspectCommand(os.Args[2:])
	case "ports":
		err = portsCommand()
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("telem-edge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	port := fs.String("port", "", "Override device.port from the config")
	autoStart := fs.Bool("start", false, "Start a session immediately")
	noConsole := fs.Bool("no-console", false, "Disable the interactive key console")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := telemflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *port != "" {
		cfg.Device.Port = *port
	}
	if *autoStart {
		cfg.AutoStart = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interactive := !*noConsole && term.IsTerminal(int(os.Stdin.Fd()))

	var opts []telemflow.RuntimeOption
	if interactive {
		// Raw mode owns the terminal; logs would tear the status line.
		lf, err := openLogFile(*cfgPath)
		if err != nil {
			return err
		}
		defer lf.Close()
		opts = append(opts, telemflow.WithLogOutput(lf))
	}
	rt, err := telemflow.NewRuntime(cfg, opts...)
	if err != nil {
		return err
	}
	if !interactive {
		return rt.Run(ctx)
	}

	if err := rt.Start(); err != nil {
		return errors.Join(err, rt.Shutdown(context.Background()))
	}
	consoleErr := runConsole(ctx, rt, os.Stdin, os.Stdout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Policy.StopTimeout+3*time.Second)
	defer cancel()
	return errors.Join(consoleErr, rt.Shutdown(shutdownCtx))
}

func openLogFile(cfgPath string) (*os.File, error) {
	name := strings.TrimSuffix(cfgPath, filepath.Ext(cfgPath)) + ".log"
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open console log: %w", err)
	}
	return f, nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := telemflow.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func inspectCommand(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	path := fs.String("log", "", "Path to a CSV record log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("-log is required")
	}

	sum, err := recordlog.Inspect(*path)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n  rows:      %d\n  last seq:  %d\n  seq gaps:  %d\n  torn tail: %t\n",
		sum.Path, sum.Rows, sum.LastSeq, sum.Gaps, sum.TornTail)
	return nil
}

func portsCommand() error {
	found := device.ListPorts()
	if len(found) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range found {
		fmt.Println(p)
	}
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"telem_frames_read_total":      0,
		"telem_frames_discarded_total": 0,
		"telem_samples_accepted_total": 0,
		"telem_series_points":          0,
		"telem_session_running":        0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] running=%.0f frames=%.0f discarded=%.0f samples=%.0f points=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["telem_session_running"],
		targets["telem_frames_read_total"],
		targets["telem_frames_discarded_total"],
		targets["telem_samples_accepted_total"],
		targets["telem_series_points"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`TelemFlow CLI

Usage:
  telem-edge <command> [flags]

Commands:
  run        Open the monitor using the provided config
  validate   Load and validate a config file without starting anything
  inspect    Summarize a CSV record log (rows, last seq, gaps, torn tail)
  ports      List serial ports present on this host
  stats      Poll the Prometheus metrics endpoint and print live counters

Console keys (run, interactive terminal):
  s start session   x stop session   1/2 cycle view metric   q quit

Examples:
  telem-edge run -config ./data/config.yaml
  telem-edge run -port tcp://127.0.0.1:7070 -start
  telem-edge inspect -log ./data/logs/sensor_data_20240101_120000.csv
  telem-edge stats -url http://localhost:9100/metrics -interval 1s
`)
}
