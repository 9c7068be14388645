package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	service "github.com/okian/smileboard/internal/app"
)

const helpText = `commands:
  start               start capturing
  stop                stop capturing
  capture             submit one frame
  upload <path>       submit an image file
  wait                wait for in-flight requests
  stats               show session summary
  rewards             list recent rewards, newest first
  export [path] [-f]  write rewards as CSV (-f overwrites)
  quit                leave`

// console drives a session from line commands and prints observer events.
type console struct {
	in  io.Reader
	svc *service.Service

	mu  sync.Mutex // guards out
	out io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: in, out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// OnStateChanged prints status updates.
func (c *console) OnStateChanged(change service.StateChange) {
	c.printf("%s | score %d | streak %d", change.Status, change.Score.TotalScore, change.Score.CurrentStreak)
	if r := change.LatestReward; r != nil {
		c.printf("  reward +%d at %.1f%% confidence", r.Points, r.ConfidencePercent)
	}
}

// OnError prints failures.
func (c *console) OnError(kind service.ErrorKind, message string) {
	c.printf("error [%s]: %s", kind, message)
}

// Run reads commands until quit, EOF, or ctx is done.
func (c *console) Run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("smileboard ready (user %s). Type help for commands.", c.svc.User())
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !c.exec(ctx, line) {
				return
			}
		}
	}
}

// exec runs one command line and reports whether to continue.
func (c *console) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		c.printf("%s", helpText)
	case "start":
		c.svc.StartCapture(ctx)
	case "stop":
		c.svc.StopCapture()
	case "capture":
		_ = c.svc.CaptureFrame(ctx)
	case "upload":
		if len(args) != 1 {
			c.printf("usage: upload <path>")
			return true
		}
		_ = c.svc.UploadFile(ctx, args[0])
	case "wait":
		c.svc.Wait()
	case "stats":
		s := c.svc.Analytics()
		c.printf("user %s | score %d | streak %d | session %s | capture %s | rewards %d | captures %d | uploads %d | failures %d",
			s.User, s.TotalScore, s.CurrentStreak, s.SessionTime, s.CaptureState, s.Rewards, s.Captures, s.Uploads, s.Failures)
	case "rewards":
		entries := c.svc.Rewards()
		if len(entries) == 0 {
			c.printf("no rewards yet")
		}
		for _, e := range entries {
			c.printf("%s  +%d  %.1f%%  streak %d", e.Timestamp.Format("15:04:05"), e.Points, e.ConfidencePercent, e.Streak)
		}
	case "export":
		c.export(ctx, args)
	case "quit", "exit":
		return false
	default:
		c.printf("unknown command %q, type help", cmd)
	}
	return true
}

func (c *console) export(ctx context.Context, args []string) {
	var path string
	force := false
	for _, a := range args {
		switch a {
		case "-f", "--force":
			force = true
		default:
			path = a
		}
	}
	if path == "" {
		path = c.svc.DefaultExportPath()
	}
	if err := c.svc.Export(ctx, path, force); err != nil {
		return
	}
	c.printf("exported to %s", path)
}
