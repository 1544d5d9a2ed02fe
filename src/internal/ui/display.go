package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// statusWidth 状态行最多显示的字符数
const statusWidth = 100

var (
	mu  sync.Mutex
	out io.Writer = os.Stdout
)

func PrintBanner() {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprint(out, Cyan+`
  ___        ___ _    _  __ _
 | _ \___   / __| |_ (_)/ _| |_
 |  _/ _ \_ \__ \ ' \| |  _|  _|
 |_| \___(_)|___/_||_|_|_|  \__|
`+Reset)
	fmt.Fprintln(out, Gray+"  migrate exploit PoCs to cloned contracts · forge replay · clone matching"+Reset)
	fmt.Fprintln(out)
}

// fit 按字符截断，避免切断多字节字符
func fit(msg string, width int) string {
	r := []rune(msg)
	if len(r) <= width {
		return msg
	}
	return string(r[:width-3]) + "..."
}

// line 清掉当前状态行后输出一条带标签的记录
func line(color, tag, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprint(out, "\r\033[K")
	fmt.Fprintf(out, color+"["+tag+"] "+Reset+format+"\n", a...)
}

func UpdateStatus(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprint(out, "\r\033[K"+Cyan+"⚡ "+fit(fmt.Sprintf(format, a...), statusWidth)+Reset)
}

func LogSuccess(format string, a ...interface{}) { line(Green, "OK", format, a...) }
func LogInfo(format string, a ...interface{})    { line(Blue, "INFO", format, a...) }
func LogError(format string, a ...interface{})   { line(Red, "ERROR", format, a...) }

// LogCandidate prints one contract a PoC may be migrated to.
func LogCandidate(address, chain, pocFile string, validated bool) {
	if validated {
		line(Red, "REPRODUCED", "%s (%s) <- %s", address, chain, pocFile)
		return
	}
	line(Yellow, "CANDIDATE", "%s (%s) <- %s", address, chain, pocFile)
}

// StartSpinner animates msg until the returned channel is closed.
func StartSpinner(msg string) chan struct{} {
	stop := make(chan struct{})
	go func() {
		frames := []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				mu.Lock()
				fmt.Fprint(out, "\r\033[K")
				mu.Unlock()
				return
			case <-ticker.C:
				mu.Lock()
				fmt.Fprintf(out, "\r\033[K"+Cyan+"%c %s"+Reset, frames[i%len(frames)], msg)
				mu.Unlock()
			}
		}
	}()
	return stop
}

func PrintStats(title string, total, migrated, failed, candidates int, duration time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	rule := Gray + strings.Repeat("─", 50) + Reset
	fmt.Fprintf(out, "\n%s\n", rule)
	fmt.Fprintf(out, "🏁 %s done in %s\n", title, duration.Round(time.Millisecond))
	fmt.Fprintf(out, "   inputs %d  migrated %d  failed %d  candidates %d\n", total, migrated, failed, candidates)
	fmt.Fprintln(out, rule)
}
