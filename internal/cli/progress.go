package cli

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/docwatch/internal/models"
)

// Theme holds the color scheme for the jobs display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) badge(rec models.JobRecord) string {
	label := fmt.Sprintf("[%s]", rec.Status)
	switch {
	case rec.Stale:
		return t.hintStyle().Render("[stale]")
	case rec.Status == models.StatusDone:
		return t.completedStyle().Render(label)
	case rec.Status == models.StatusFailed:
		return t.errorStyle().Render(label)
	default:
		return t.statusStyle().Render(label)
	}
}

// feedMsg carries a new snapshot into the model.
type feedMsg models.FeedMessage

// feedClosedMsg signals that the snapshot source ended.
type feedClosedMsg struct{}

// jobsModel is the bubbletea model for the live jobs view.
type jobsModel struct {
	feed     <-chan models.FeedMessage
	jobs     []models.JobRecord
	polling  map[string]bool
	cadence  string
	version  uint64
	progress progress.Model
	theme    Theme

	// only restricts the view to one job; exitWhenSettled quits once every
	// shown job is done, failed or stale.
	only            string
	exitWhenSettled bool

	quitting bool
	done     bool
	err      error
}

// newJobsModel creates a jobs view fed by feed.
func newJobsModel(feed <-chan models.FeedMessage, only string, exitWhenSettled bool) jobsModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(30),
	)

	return jobsModel{
		feed:            feed,
		polling:         map[string]bool{},
		progress:        prog,
		theme:           defaultTheme,
		only:            only,
		exitWhenSettled: exitWhenSettled,
	}
}

// Init starts listening for snapshots.
func (m jobsModel) Init() tea.Cmd {
	return tea.Batch(
		waitForFeed(m.feed),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m jobsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case feedMsg:
		m.apply(models.FeedMessage(msg))
		if m.exitWhenSettled && settled(m.jobs) {
			m.done = true
			m.err = failure(m.jobs)
			return m, tea.Quit
		}
		return m, waitForFeed(m.feed)

	case feedClosedMsg:
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *jobsModel) apply(msg models.FeedMessage) {
	m.version = msg.Version
	m.cadence = msg.Cadence
	m.polling = make(map[string]bool, len(msg.Polling))
	for _, id := range msg.Polling {
		m.polling[id] = true
	}
	m.jobs = filterJobs(msg.Jobs, m.only)
}

// View renders the jobs display.
func (m jobsModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m jobsModel) renderContent() string {
	var b strings.Builder

	if m.version == 0 && len(m.jobs) == 0 && !m.done {
		return "Loading jobs...\n"
	}

	header := fmt.Sprintf("%d job(s)", len(m.jobs))
	if m.cadence != "" {
		header += " · " + m.cadence
	}
	b.WriteString(m.theme.statusStyle().Render(header) + "\n\n")

	if len(m.jobs) == 0 {
		b.WriteString("No jobs tracked.\n")
	}
	for _, rec := range m.jobs {
		b.WriteString(m.renderRow(rec))
		b.WriteString("\n")
	}

	switch {
	case m.quitting:
		b.WriteString(m.theme.hintStyle().Render("\nJobs continue on the server. Use 'docwatch status <job-id>' to check later.") + "\n")
	case m.done && m.err != nil:
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s", m.err)) + "\n")
	case m.done:
		b.WriteString(m.theme.completedStyle().Render("\n✓ All jobs settled") + "\n")
	default:
		b.WriteString(m.theme.hintStyle().Render("\nPress q to quit") + "\n")
	}
	return b.String()
}

func (m jobsModel) renderRow(rec models.JobRecord) string {
	pct := rec.Progress() / 100
	if rec.Status == models.StatusDone {
		pct = 1
	}
	line := fmt.Sprintf("%-12s %-28s %s %5.1f%%",
		m.theme.badge(rec), truncateName(rec.OriginalFilename, 28), m.progress.ViewAs(pct), pct*100)

	switch {
	case rec.Stale:
		line += "  " + m.theme.hintStyle().Render("polling stopped: "+rec.LastPollError)
	case rec.Status == models.StatusFailed && rec.ErrorMessage != nil:
		line += "  " + m.theme.errorStyle().Render(*rec.ErrorMessage)
	case rec.Status == models.StatusDone && rec.ChunkCount != nil:
		line += fmt.Sprintf("  %d chunks", *rec.ChunkCount)
	case m.polling[rec.JobID]:
		line += "  " + m.theme.hintStyle().Render("polling")
	}
	return line
}

// waitForFeed blocks on the next snapshot in a command goroutine.
func waitForFeed(feed <-chan models.FeedMessage) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return feedMsg(msg)
	}
}

// RunJobsView runs the interactive jobs view until the feed closes, the user
// quits, or (with exitWhenSettled) every shown job settles.
// Returns an error if a shown job failed.
func RunJobsView(feed <-chan models.FeedMessage, only string, exitWhenSettled bool) error {
	p := tea.NewProgram(newJobsModel(feed, only, exitWhenSettled))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("jobs UI error: %w", err)
	}

	if m, ok := finalModel.(jobsModel); ok && !m.quitting {
		return m.err
	}
	return nil
}

func filterJobs(jobs []models.JobRecord, only string) []models.JobRecord {
	if only == "" {
		return jobs
	}
	for _, rec := range jobs {
		if rec.JobID == only {
			return []models.JobRecord{rec}
		}
	}
	return nil
}

// settled reports whether every job reached a terminal status or stopped polling.
func settled(jobs []models.JobRecord) bool {
	if len(jobs) == 0 {
		return false
	}
	for _, rec := range jobs {
		if rec.Status.IsActive() && !rec.Stale {
			return false
		}
	}
	return true
}

// failure returns an error describing the first failed or stale job.
func failure(jobs []models.JobRecord) error {
	for _, rec := range jobs {
		switch {
		case rec.Status == models.StatusFailed:
			msg := "unknown error"
			if rec.ErrorMessage != nil {
				msg = *rec.ErrorMessage
			}
			return fmt.Errorf("job %s failed: %s", rec.JobID, msg)
		case rec.Stale:
			return fmt.Errorf("job %s: polling stopped: %s", rec.JobID, rec.LastPollError)
		}
	}
	return nil
}

func truncateName(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
