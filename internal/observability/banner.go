package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	ansiReset  = "\033[0m"
	ansiCyan   = "\033[96m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[91m"
	ansiDim    = "\033[2m"

	// The logo fills rows 1-9, the status line is row 10 and logs scroll
	// from row 12.
	statusRow = 10
	logRow    = 12

	maxTaskLabel = 32
)

var (
	startTime = time.Now()

	// termMu serialises terminal writes so a log line never lands between
	// the cursor save and restore of the status line.
	termMu sync.Mutex
)

// TermWriter writes log output below the dashboard.
type TermWriter struct {
	Out io.Writer
}

func (tw *TermWriter) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.Out.Write(p)
}

func NewTermWriter() *TermWriter {
	return &TermWriter{Out: os.Stderr}
}

const logo = `
   _____ __________  __  ________
  / ___// ____/ __ \/ / / /_  __/
  \__ \/ /   / / / / / / / / /
 ___/ / /___/ /_/ / /_/ / / /
/____/\____/\____/\____/ /_/
      challenge-aware browser agent`

func PrintBanner() {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}
	fmt.Print("\033[2J\033[H")
	for _, line := range strings.Split(logo, "\n") {
		pad := max((width-len([]rune(line)))/2, 0)
		fmt.Println(strings.Repeat(" ", pad) + ansiCyan + line + ansiReset)
	}
}

func InitializeTerminal() {
	fmt.Printf("\033[%d;r\033[%d;1H", logRow, logRow)
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// statusView is one frame of the status line.
type statusView struct {
	Phase      Phase
	Task       string
	Active     int
	Heartbeat  time.Time
	Uptime     time.Duration
	Goroutines int
}

// pulse grades heartbeat freshness against the 30s heartbeat ticker.
func pulse(sinceHeartbeat time.Duration) (string, string) {
	switch {
	case sinceHeartbeat < 40*time.Second:
		return "alive", ansiCyan
	case sinceHeartbeat < 90*time.Second:
		return "late", ansiYellow
	default:
		return "stalled", ansiRed
	}
}

func phaseColor(p Phase) string {
	switch p {
	case PhaseChallenged, PhaseWaiting:
		return ansiYellow
	case PhaseIdle:
		return ansiDim
	default:
		return ansiCyan
	}
}

func statusLine(v statusView, now time.Time) string {
	label, color := pulse(now.Sub(v.Heartbeat))

	task := v.Task
	if task == "" {
		task = "-"
	}
	if r := []rune(task); len(r) > maxTaskLabel {
		task = string(r[:maxTaskLabel-1]) + "…"
	}

	return fmt.Sprintf("%s%-7s%s %s%-11s%s tasks=%d %q up=%s goroutines=%d",
		color, label, ansiReset,
		phaseColor(v.Phase), v.Phase, ansiReset,
		v.Active, task, v.Uptime.Round(time.Second), v.Goroutines)
}

// PrintLiveStatus redraws the status line in place.
func PrintLiveStatus() {
	phase, task, active, hb := GetStatus()
	line := statusLine(statusView{
		Phase:      phase,
		Task:       task,
		Active:     active,
		Heartbeat:  hb,
		Uptime:     time.Since(startTime),
		Goroutines: runtime.NumGoroutine(),
	}, time.Now())

	termMu.Lock()
	defer termMu.Unlock()
	fmt.Printf("\033[s\033[%d;1H\033[K%s\033[u", statusRow, line)
}
