package cli

import (
	"fmt"
	"io"
	"jobtracker/internal/tracker"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Styles contains all lipgloss styles of the watch output
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Neutral lipgloss.Style
	Muted   lipgloss.Style

	PhaseName lipgloss.Style
}

// DefaultStyles returns the default styles bound to renderer r
func DefaultStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Success: r.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		Neutral: r.NewStyle().Foreground(lipgloss.Color("250")),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("245")),

		PhaseName: r.NewStyle().Width(24),
	}
}

// Severity returns the style for a display severity
func (s Styles) Severity(sev tracker.Severity) lipgloss.Style {
	switch sev {
	case tracker.SeveritySuccess:
		return s.Success
	case tracker.SeverityError:
		return s.Error
	case tracker.SeverityWarning:
		return s.Warning
	default:
		return s.Neutral
	}
}

// Icons used in the watch output
const (
	IconComplete   = "✓"
	IconInProgress = "●"
	IconFailed     = "✗"
	IconUnknown    = "?"
	IconPending    = "○"
)

// PhaseIcon returns the symbol of a phase icon
func PhaseIcon(icon tracker.Icon) string {
	switch icon {
	case tracker.IconSuccess:
		return IconComplete
	case tracker.IconError:
		return IconFailed
	case tracker.IconInProgress:
		return IconInProgress
	default:
		return IconUnknown
	}
}

func (s Styles) phaseStyle(icon tracker.Icon) lipgloss.Style {
	switch icon {
	case tracker.IconSuccess:
		return s.Success
	case tracker.IconError:
		return s.Error
	case tracker.IconInProgress:
		return s.Warning
	default:
		return s.Muted
	}
}

// RenderView renders a session snapshot: a status line, one row per phase
// and the backend message, if any. A snapshot without a view renders as a
// pending line.
func RenderView(s Styles, snap tracker.Snapshot) string {
	var b strings.Builder

	v := snap.View
	if v == nil {
		fmt.Fprintf(&b, "%s %s\n", s.Muted.Render(IconPending), s.Muted.Render("Waiting for status of job "+string(snap.Handle)))
		return b.String()
	}

	style := s.Severity(tracker.SeverityOf(v))
	header := string(v.Status)
	if v.RawStatus != "" && !strings.EqualFold(v.RawStatus, header) {
		header += " (" + v.RawStatus + ")"
	}
	fmt.Fprintf(&b, "%s %s", style.Render(statusIcon(v.Status)), style.Bold(true).Render(header))
	if snap.Handle != "" {
		fmt.Fprintf(&b, "  %s", s.Muted.Render(string(snap.Handle)))
	}
	if v.Duration != "" {
		fmt.Fprintf(&b, "  %s", v.Duration)
	}
	b.WriteString("\n")

	for _, p := range v.Phases {
		ps := s.phaseStyle(p.Icon)
		fmt.Fprintf(&b, "  %s %s %s", ps.Render(PhaseIcon(p.Icon)), s.PhaseName.Render(p.Name), ps.Render(p.Status))
		if p.Duration != "" {
			fmt.Fprintf(&b, "  %s", s.Muted.Render(p.Duration))
		}
		b.WriteString("\n")
	}

	if v.Message != "" {
		fmt.Fprintf(&b, "  %s\n", style.Render(v.Message))
	}
	return b.String()
}

func statusIcon(status tracker.OverallStatus) string {
	switch status {
	case tracker.StatusCompleted:
		return IconComplete
	case tracker.StatusFailed, tracker.StatusError:
		return IconFailed
	case tracker.StatusRunning:
		return IconInProgress
	default:
		return IconUnknown
	}
}

// RenderNotification renders a notification as one line.
func RenderNotification(s Styles, n tracker.Notification) string {
	style := s.Severity(n.Severity)
	icon := IconFailed
	if n.Severity == tracker.SeveritySuccess {
		icon = IconComplete
	}
	return fmt.Sprintf("%s %s %s\n", style.Render(icon), style.Bold(true).Render(n.Title+":"), n.Message)
}

// Renderer prints session events as they happen. It implements
// tracker.Observer. A view is printed again only when it changed.
type Renderer struct {
	out    io.Writer
	styles Styles

	mu   sync.Mutex
	last string
}

// NewRenderer creates a renderer writing to out. Colors are used only when
// out is a terminal.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{
		out:    out,
		styles: DefaultStyles(lipgloss.NewRenderer(out)),
	}
}

// Styles returns the styles of the renderer.
func (r *Renderer) Styles() Styles {
	return r.styles
}

// Notify implements tracker.Observer.
func (r *Renderer) Notify(e tracker.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := e.Snapshot
	switch e.Type {
	case tracker.EventLaunched:
		fmt.Fprintf(r.out, "%s %s\n", r.styles.Title.Render("Launched job"), snap.Handle)
		r.last = ""
	case tracker.EventAttached:
		fmt.Fprintf(r.out, "%s %s\n", r.styles.Title.Render("Attached to job"), snap.Handle)
		r.last = ""
	case tracker.EventUpdated:
		view := RenderView(r.styles, snap)
		if view == r.last {
			return
		}
		r.last = view
		fmt.Fprint(r.out, view)
		if text := tracker.FormatLastRefreshed(snap.LastRefreshed); text != "" {
			fmt.Fprintf(r.out, "  %s\n", r.styles.Muted.Render(text))
		}
	case tracker.EventStopped:
		fmt.Fprintf(r.out, "%s %s\n", r.styles.Muted.Render("Stopped tracking job"), snap.Handle)
	case tracker.EventNotification:
		if e.Notification != nil {
			fmt.Fprint(r.out, RenderNotification(r.styles, *e.Notification))
		}
	}
}

var _ tracker.Observer = (*Renderer)(nil)
