package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// ProgressSpinner draws an animated status line for long-running work such
// as project analysis or test synthesis. It only animates on a terminal.
type ProgressSpinner struct {
	w       io.Writer
	enabled bool

	mu      sync.Mutex
	message string
	started time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewProgressSpinner creates a spinner that draws on w.
func NewProgressSpinner(w io.Writer, message string) *ProgressSpinner {
	return &ProgressSpinner{w: w, enabled: isTerminal(w), message: message}
}

// Start begins the animation. It is a no-op when the writer is not a
// terminal or the spinner already runs.
func (p *ProgressSpinner) Start() {
	if !p.enabled || p.stop != nil {
		return
	}
	p.started = time.Now()
	p.stop = make(chan struct{})
	p.wg.Add(1)
	go p.run(p.stop)
}

// Stop halts the animation and clears the line.
func (p *ProgressSpinner) Stop() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	p.wg.Wait()
	p.stop = nil
	fmt.Fprint(p.w, "\r\033[K")
}

// Message replaces the text shown next to the spinner.
func (p *ProgressSpinner) Message(msg string) {
	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()
}

func (p *ProgressSpinner) run(stop <-chan struct{}) {
	defer p.wg.Done()
	tick := time.NewTicker(80 * time.Millisecond)
	defer tick.Stop()

	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-tick.C:
		}
		p.mu.Lock()
		msg := p.message
		p.mu.Unlock()
		elapsed := time.Since(p.started).Truncate(time.Second)
		fmt.Fprintf(p.w, "\r\033[K\033[36m%c\033[0m %s (%s)", spinnerFrames[i%len(spinnerFrames)], msg, elapsed)
	}
}
