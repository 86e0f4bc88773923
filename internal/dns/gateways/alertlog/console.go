package alertlog

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// ConsoleNotifier prints a multi-line alert block to an operator terminal.
// Colors are applied only when the writer is a color-capable terminal.
type ConsoleNotifier struct {
	mu       sync.Mutex
	w        io.Writer
	critical lipgloss.Style
	medium   lipgloss.Style
	label    lipgloss.Style
}

// NewConsoleNotifier returns a notifier writing to w.
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	r := lipgloss.NewRenderer(w)
	return &ConsoleNotifier{
		w:        w,
		critical: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		medium:   r.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
		label:    r.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

// Notify writes the block for rec.
func (n *ConsoleNotifier) Notify(rec domain.AlertRecord) error {
	block := n.Render(rec)
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := io.WriteString(n.w, block)
	return err
}

// Render formats rec without writing it:
//
//	[ALERT] 14:03:07 | Severity: CRITICAL
//	  Rule      : HIGH ENTROPY SUBDOMAIN + LONG SUBDOMAIN
//	  Source IP : 10.0.0.5
//	  ...
func (n *ConsoleNotifier) Render(rec domain.AlertRecord) string {
	header := n.medium
	if rec.Severity == domain.SeverityCritical {
		header = n.critical
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(header.Render(fmt.Sprintf("[ALERT] %s | Severity: %s", rec.Clock(), rec.Severity)))
	b.WriteString("\n")
	for _, row := range [][2]string{
		{"Rule", rec.RuleDescription()},
		{"Source IP", rec.SourceIP},
		{"Domain", domain.EscapeField(rec.Domain)},
		{"Subdomain", domain.EscapeField(rec.Subdomain)},
		{"Entropy", strconv.FormatFloat(rec.Entropy, 'f', 2, 64)},
	} {
		b.WriteString("  ")
		b.WriteString(n.label.Render(fmt.Sprintf("%-10s:", row[0])))
		b.WriteString(" ")
		b.WriteString(row[1])
		b.WriteString("\n")
	}
	return b.String()
}
