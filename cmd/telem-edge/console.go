package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/ghalamif/TelemFlow"
)

// console maps single key presses onto runtime commands and keeps one status
// line current. It owns the terminal in raw mode until it returns.
type console struct {
	rt  *telemflow.Runtime
	out io.Writer
}

func runConsole(ctx context.Context, rt *telemflow.Runtime, in *os.File, out io.Writer) error {
	fd := int(in.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("console raw mode: %w", err)
	}
	defer term.Restore(fd, state) //nolint:errcheck

	c := &console{rt: rt, out: out}
	events, unsubscribe := rt.Subscribe(8)
	defer unsubscribe()

	keys := make(chan byte)
	go readKeys(in, keys)

	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	c.help()
	c.status("")
	note := ""
	for {
		select {
		case <-ctx.Done():
			fmt.Fprint(out, "\r\n")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			note = describe(ev)
			c.status(note)
		case <-refresh.C:
			c.status(note)
		case k, ok := <-keys:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, k); quit {
				fmt.Fprint(out, "\r\n")
				return nil
			}
		}
	}
}

func readKeys(in io.Reader, keys chan<- byte) {
	defer close(keys)
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return
		}
		if n == 1 {
			keys <- buf[0]
		}
	}
}

func (c *console) handle(ctx context.Context, k byte) bool {
	switch k {
	case 'q', 3: // ctrl-c arrives as a byte in raw mode
		return true
	case 's':
		s, err := c.rt.StartSession(ctx)
		if err != nil {
			c.status("start failed: " + err.Error())
			return false
		}
		c.status("recording to " + s.RecordLog)
	case 'x':
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.rt.StopSession(stopCtx); err != nil {
			c.status("stop failed: " + err.Error())
		}
	case '1', '2':
		view := int(k - '1')
		metric, err := c.rt.CycleMetric(ctx, view)
		if err != nil {
			c.status("view: " + err.Error())
			return false
		}
		c.status(fmt.Sprintf("view %d shows %s", view+1, metric))
	case 'h', '?':
		c.help()
		c.status("")
	}
	return false
}

func (c *console) help() {
	fmt.Fprint(c.out, "\r\n[s] start  [x] stop  [1]/[2] cycle view metric  [q] quit\r\n")
}

func (c *console) status(note string) {
	st := c.rt.Status()
	line := fmt.Sprintf("state=%s samples=%d views=%s", st.State, st.Samples, strings.Join(c.rt.Views(), ","))
	if st.SessionID != "" {
		line += " session=" + shortID(st.SessionID)
	}
	if note != "" {
		line += " | " + note
	}
	// \x1b[K clears what is left of the previous, possibly longer, line.
	fmt.Fprintf(c.out, "\r%s\x1b[K", line)
}

func describe(ev telemflow.Event) string {
	switch ev.Kind {
	case telemflow.EventFault:
		return "fault: " + ev.Reason
	case telemflow.EventStopped:
		return "stopped"
	case telemflow.EventStarted:
		return "started"
	}
	return string(ev.Kind)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
