package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/advice"
	"docqa/internal/pipeline"
	"docqa/internal/textproc"
)

// Asker is the TUI-facing subset of the answering pipeline.
type Asker interface {
	Answer(ctx context.Context, question string) (pipeline.Envelope, error)
}

type exchange struct {
	env pipeline.Envelope
	err error
}

// answerMsg carries a finished pipeline call back into Update.
type answerMsg struct {
	question string
	env      pipeline.Envelope
	err      error
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	asker    Asker
	sentinel string
	timeout  time.Duration

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	history     []exchange
	summary     string
	status      string
	pending     string
	showContext bool
	ready       bool
}

// New creates a chat model. sentinel is the context text used when retrieval
// finds nothing, so such answers can be flagged.
func New(asker Asker, summary, sentinel string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	return Model{
		asker:    asker,
		sentinel: sentinel,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
		status:   "Ready. Tab toggles the retrieved context.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	asker, timeout := m.asker, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		env, err := asker.Answer(ctx, question)
		return answerMsg{question: question, env: env, err: err}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, max(3, msg.Height-reserved)-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = ""
		if msg.env.Question == "" {
			msg.env.Question = msg.question
		}
		m.history = append(m.history, exchange{env: msg.env, err: msg.err})
		m.status = m.statusFor(msg)
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if m.pending == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.status = m.spinner.View() + " Answering " + fmt.Sprintf("%q", m.pending)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending != "" {
				return m, nil
			}
			m.pending = q
			m.input.Reset()
			m.status = "Answering " + fmt.Sprintf("%q", q)
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "tab":
			m.showContext = !m.showContext
			m.refresh()
			return m, nil
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) statusFor(msg answerMsg) string {
	switch {
	case msg.err != nil:
		if hint := advice.For(msg.err); hint != "" {
			return "Error: " + hint
		}
		return "Error: " + msg.err.Error()
	case msg.env.Empty():
		return "Warning: the model returned an empty answer."
	case msg.env.Context == m.sentinel:
		return "Warning: nothing relevant was retrieved; the answer is not grounded in your documents."
	}
	tier := msg.env.Retrieval.Tier.String()
	return fmt.Sprintf("Answered from %d passage(s), confidence %s.", len(msg.env.Retrieval.Chunks), tier)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docqa")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("Q: " + ex.env.Question))
		b.WriteString("\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render(ex.err.Error()))
			continue
		}
		answer := ex.env.Answer
		if answer == "" {
			answer = "(empty answer)"
		}
		b.WriteString("A: " + answer)
		if m.showContext {
			b.WriteString("\n")
			b.WriteString(contextStyle.Render(m.renderContext(ex.env)))
		}
	}
	return b.String()
}

func (m Model) renderContext(env pipeline.Envelope) string {
	res := env.Retrieval
	if len(res.Chunks) == 0 {
		return "Context: " + env.Context
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Context (tier %s, best %.3f):", res.Tier, res.BestScore)
	if res.Annotation != "" {
		b.WriteString("\n" + res.Annotation)
	}
	for i, c := range res.Chunks {
		fmt.Fprintf(&b, "\n[%d] %s  d=%.3f\n%s", i+1, c.Chunk.Source, c.Distance, highlightBestSentence(c.Chunk.Content, env.Question))
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	contextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// highlightBestSentence marks the sentence of text sharing the most words
// with query.
func highlightBestSentence(text, query string) string {
	sentences := textproc.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	terms := textproc.Terms(s)
	m := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range textproc.Terms(sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
