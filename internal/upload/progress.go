package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/haasonsaas/filesearch/pkg/models"
	"golang.org/x/term"
)

// Progress prints one line per finished upload. On a terminal the line is
// rewritten in place. A nil Progress prints nothing.
type Progress struct {
	out         io.Writer
	interactive bool
	total       int
	done        int
}

// NewProgress writes to out. Output is rewritten in place when out is a
// terminal.
func NewProgress(out io.Writer) *Progress {
	p := &Progress{out: out}
	if f, ok := out.(*os.File); ok {
		p.interactive = term.IsTerminal(int(f.Fd()))
	}
	return p
}

// Start resets the counter.
func (p *Progress) Start(total int) {
	if p == nil {
		return
	}
	p.total = total
	p.done = 0
}

// Done records one finished upload. Callers serialize calls.
func (p *Progress) Done(rec models.UploadRecord) {
	if p == nil {
		return
	}
	p.done++
	mark := "ok"
	if rec.Status != models.UploadSucceeded {
		mark = "FAILED"
	}
	if p.interactive {
		fmt.Fprintf(p.out, "\r\033[K[%d/%d] %s %s", p.done, p.total, mark, filepath.Base(rec.Path))
		return
	}
	fmt.Fprintf(p.out, "[%d/%d] %s %s\n", p.done, p.total, mark, filepath.Base(rec.Path))
}

// Finish terminates an in-place line.
func (p *Progress) Finish() {
	if p == nil || !p.interactive || p.total == 0 {
		return
	}
	fmt.Fprintln(p.out)
}
