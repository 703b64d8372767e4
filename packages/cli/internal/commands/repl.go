package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gm-agent-org/gm-genai/packages/cli/internal/client"
)

// replTimeout bounds a single chat turn.
const replTimeout = 10 * time.Minute

type errMsg error

type runDoneMsg struct {
	resp *client.RunResponse
}

// model is a chat session held on the client: every turn posts the whole
// transcript so far as a new run.
type model struct {
	client  *client.Client
	ctx     context.Context
	cancel  context.CancelFunc
	waiting bool
	width   int

	history  []client.Message
	rendered []string
	lastID   string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
}

func initialModel(c *client.Client) model {
	ta := textarea.New()
	ta.Placeholder = "Send a message... (Type /new to reset, /exit to quit)"
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ctx, cancel := context.WithCancel(context.Background())
	m := model{
		client:   c,
		ctx:      ctx,
		cancel:   cancel,
		width:    80,
		viewport: vp,
		textarea: ta,
		spinner:  sp,
	}
	m.rendered = append(m.rendered, styleTitle.Render("gm-genai")+" "+styleSubtitle.Render("new conversation"))
	m.updateViewport()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	m.spinner, spCmd = m.spinner.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancel()
			return m, tea.Quit
		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			switch input {
			case "":
				return m, nil
			case "/exit", "/quit":
				m.cancel()
				return m, tea.Quit
			case "/new":
				m.history = nil
				m.lastID = ""
				m.rendered = append(m.rendered, styleSystemMsg.Render("Started a new conversation"))
				m.updateViewport()
				return m, nil
			}

			m.history = append(m.history, client.Message{Role: "user", Content: input})
			m.rendered = append(m.rendered, styleUserLabel.Render("You")+"\n"+input)
			m.waiting = true
			m.updateViewport()
			return m, runCmd(m.ctx, m.client, m.history)
		}

	case runDoneMsg:
		m.waiting = false
		res := msg.resp.Result
		m.lastID = res.SessionID
		if len(res.Messages) > 0 {
			m.history = res.Messages
		}
		m.rendered = append(m.rendered, m.renderTurn(msg.resp))
		m.updateViewport()
		return m, nil

	case errMsg:
		m.waiting = false
		// drop the unanswered prompt so the next turn can resend it
		if n := len(m.history); n > 0 && m.history[n-1].Role == "user" {
			m.history = m.history[:n-1]
		}
		m.rendered = append(m.rendered, styleFailed.Render(fmt.Sprintf("Error: %v", msg)))
		m.updateViewport()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		m.textarea.SetWidth(msg.Width)
		m.updateViewport()
	}

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m model) View() string {
	var s strings.Builder
	s.WriteString(m.viewport.View())
	s.WriteString("\n")
	if m.waiting {
		s.WriteString(m.spinner.View() + " Thinking...\n")
	} else if m.lastID != "" {
		s.WriteString(styleSubtitle.Render("last run "+m.lastID) + "\n")
	} else {
		s.WriteString("\n")
	}
	s.WriteString(m.textarea.View())
	return s.String()
}

func (m *model) renderTurn(resp *client.RunResponse) string {
	res := resp.Result
	var b strings.Builder
	b.WriteString(styleAssistantLabel.Render("Assistant") + "\n")
	b.WriteString(renderMarkdown(res.Text, m.width-4))
	for name, fe := range res.FileEdits {
		b.WriteString(styleFileEdit(name, fe) + "\n")
	}
	for _, a := range resp.Applied {
		b.WriteString(styleApplied(a) + "\n")
	}
	if res.Status != "success" {
		b.WriteString(styleFailed.Render(fmt.Sprintf("%s: %s", res.Status, res.Error)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) updateViewport() {
	m.viewport.SetContent(strings.Join(m.rendered, "\n\n"))
	m.viewport.GotoBottom()
}

func runCmd(ctx context.Context, c *client.Client, history []client.Message) tea.Cmd {
	msgs := append([]client.Message(nil), history...)
	return func() tea.Msg {
		resp, err := c.Run(ctx, client.RunRequest{Messages: msgs})
		if err != nil {
			return errMsg(err)
		}
		return runDoneMsg{resp: resp}
	}
}

func replLoop(cfg *Config) error {
	c, err := client.New(cfg.Server, cfg.APIKey, replTimeout)
	if err != nil {
		return err
	}
	p := tea.NewProgram(initialModel(c), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
