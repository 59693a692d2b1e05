// Package tui is the interactive chat front end.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vkk1710/RAG-With-Citations/internal/citation"
	"github.com/vkk1710/RAG-With-Citations/internal/service"
)

// ChatPort is the TUI-facing subset of the RAG service.
type ChatPort interface {
	Chat(ctx context.Context, req service.ChatRequest) (service.ChatResponse, error)
}

type turn struct {
	question string
	resp     service.ChatResponse
	err      error
}

type answerMsg struct {
	question string
	resp     service.ChatResponse
	err      error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	service  ChatPort
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	turns    []turn
	history  []string
	summary  string
	status   string
	busy     bool
	ready    bool
}

// New creates a chat model. summary is shown under the title.
func New(svc ChatPort, summary string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the ingested documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return Model{
		service:  svc,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
		status:   "Loaded. Ask a question.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	history := append([]string(nil), m.history...)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		resp, err := m.service.Chat(ctx, service.ChatRequest{Query: q, History: history})
		return answerMsg{question: q, resp: resp, err: err}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		m.turns = append(m.turns, turn(msg))
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history = msg.resp.History
			m.status = fmt.Sprintf("Answered from %d cited passage(s), parse: %s", len(msg.resp.Cited), msg.resp.Tier)
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Thinking about %q", q)
			m.input.SetValue("")
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.turns, m.viewport.Width))
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG With Citations")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func renderTranscript(turns []turn, width int) string {
	if len(turns) == 0 {
		return "No questions yet."
	}
	wrap := lipgloss.NewStyle().Width(max(20, width))
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("Q: " + t.question))
		b.WriteString("\n")
		if t.err != nil {
			b.WriteString(errorStyle.Render(t.err.Error()))
			continue
		}
		b.WriteString(wrap.Render(t.resp.Answer))
		quotes := groundedQuotes(t.resp.Citations)
		for j, p := range t.resp.Cited {
			b.WriteString("\n\n")
			b.WriteString(sourceStyle.Render(fmt.Sprintf("[%d] %s, %s %d", j+1, p.Origin.FileName, locationLabel(p.Origin.FileName), p.Origin.Location)))
			b.WriteString("\n")
			b.WriteString(wrap.Render(highlightQuotes(citation.PhraseText(p.Text), quotes)))
		}
		for _, d := range t.resp.Rendered {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Render(fmt.Sprintf("highlighted %s -> %s %v", d.Source, d.FileName, d.Locations)))
		}
	}
	return b.String()
}

func locationLabel(fileName string) string {
	if citation.KindOf(fileName) == citation.KindCSV {
		return "row"
	}
	return "page"
}

func groundedQuotes(verdicts []citation.Verdict) []string {
	var out []string
	for _, v := range verdicts {
		if v.Outcome != citation.OutcomeDropped && strings.TrimSpace(v.Citation.Quote) != "" {
			out = append(out, citation.PhraseText(v.Citation.Quote))
		}
	}
	return out
}

// highlightQuotes styles every case-insensitive occurrence of a quote in
// text. Fuzzy matches that are not verbatim leave the text unstyled.
func highlightQuotes(text string, quotes []string) string {
	parts := make([]string, 0, len(quotes))
	for _, q := range quotes {
		parts = append(parts, regexp.QuoteMeta(q))
	}
	if len(parts) == 0 {
		return text
	}
	re, err := regexp.Compile(`(?i)` + strings.Join(parts, "|"))
	if err != nil {
		return text
	}
	return re.ReplaceAllStringFunc(text, func(s string) string { return highlightStyle.Render(s) })
}
