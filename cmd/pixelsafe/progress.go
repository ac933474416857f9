package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/alnah/go-pixelsafe"
)

// progressPrinter renders progress events as one styled line each.
// Conversions run concurrently, so lines are written under a lock.
type progressPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
	names map[string]string

	percent lipgloss.Style
	name    lipgloss.Style
	failed  lipgloss.Style
}

func newProgressPrinter(w io.Writer, quiet bool) *progressPrinter {
	r := lipgloss.NewRenderer(w)
	return &progressPrinter{
		w:       w,
		quiet:   quiet,
		names:   make(map[string]string),
		percent: r.NewStyle().Foreground(lipgloss.Color("6")).Width(5).Align(lipgloss.Right),
		name:    r.NewStyle().Bold(true),
		failed:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

// track names the document in later events.
func (p *progressPrinter) track(doc pixelsafe.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names[doc.ID()] = filepath.Base(doc.InputFilename())
}

func (p *progressPrinter) handle(ev pixelsafe.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quiet && !ev.Error {
		return
	}
	name, ok := p.names[ev.DocumentID]
	if !ok {
		name = ev.DocumentID
	}

	if ev.Error {
		fmt.Fprintf(p.w, "%s %s %s\n", p.failed.Render("FAILED"), p.name.Render(name), ev.Message)
		return
	}
	fmt.Fprintf(p.w, "%s %s %s\n", p.percent.Render(fmt.Sprintf("%d%%", int(ev.Percent))), p.name.Render(name), ev.Message)
}
