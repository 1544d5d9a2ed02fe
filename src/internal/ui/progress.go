package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const Clear = "\033[2K\r"

// ProgressBar tracks a batch of PoCs; failures are counted separately.
type ProgressBar struct {
	total       int
	current     int
	failed      int
	startTime   time.Time
	description string
	mu          sync.Mutex
	width       int
	out         io.Writer
}

func NewProgressBar(total int, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		startTime:   time.Now(),
		description: description,
		width:       40, // 进度条长度
		out:         os.Stdout,
	}
}

// Done records one finished item.
func (pb *ProgressBar) Done(ok bool) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
	if !ok {
		pb.failed++
	}
	pb.render()
}

func (pb *ProgressBar) PrintMsg(msg string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	fmt.Fprint(pb.out, Clear)
	fmt.Fprintln(pb.out, msg)
	pb.render()
}

func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	fmt.Fprint(pb.out, Clear)
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *ProgressBar) Line() string {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.line()
}

func (pb *ProgressBar) render() {
	fmt.Fprintf(pb.out, "%s%s \n", Clear, pb.line())
}

func (pb *ProgressBar) line() string {
	percent := 1.0
	if pb.total > 0 {
		percent = float64(pb.current) / float64(pb.total)
	}
	if percent > 1.0 {
		percent = 1.0
	}

	filled := int(float64(pb.width) * percent)
	bar := strings.Repeat("=", pb.width)
	if filled < pb.width {
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(".", pb.width-filled-1)
	}

	// ETA
	remaining := time.Duration(0)
	if elapsed := time.Since(pb.startTime); pb.current > 0 {
		rate := float64(pb.current) / elapsed.Seconds()
		remaining = time.Duration(float64(pb.total-pb.current)/rate) * time.Second
	}
	etaStr := fmt.Sprintf("%02dm%02ds", int(remaining.Minutes()), int(remaining.Seconds())%60)

	barColor := Cyan
	if percent >= 1.0 {
		barColor = Green
	}
	failColor := Green
	if pb.failed > 0 {
		failColor = Red
	}

	return fmt.Sprintf("%s %s[%s]%s %.0f%% | %d/%d | ETA: %s | Failed: %s%d%s",
		pb.description,
		barColor, bar, Reset,
		percent*100,
		pb.current, pb.total,
		etaStr,
		failColor, pb.failed, Reset,
	)
}
