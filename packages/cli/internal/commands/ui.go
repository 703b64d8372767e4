package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/gm-agent-org/gm-genai/packages/cli/internal/client"
)

var (
	colorPrimary   = lipgloss.Color("#FF6B35")
	colorSecondary = lipgloss.Color("#7C3AED")
	colorSuccess   = lipgloss.Color("#10B981")
	colorWarning   = lipgloss.Color("#F59E0B")
	colorError     = lipgloss.Color("#EF4444")
	colorMuted     = lipgloss.Color("#6B7280")

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	styleSubtitle = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleToolName = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary)

	styleToolArg = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleUserLabel = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	styleAssistantLabel = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPrimary)

	styleSystemMsg = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	styleCreated = lipgloss.NewStyle().Foreground(colorSuccess)
	styleChanged = lipgloss.NewStyle().Foreground(colorWarning)
	styleFailed  = lipgloss.NewStyle().Foreground(colorError)
)

// renderMarkdown renders text for the terminal, falling back to the raw text
// when glamour cannot.
func renderMarkdown(text string, width int) string {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func styleFileEdit(name string, fe *client.FileEdit) string {
	switch {
	case fe == nil:
		return styleSubtitle.Render("  " + name)
	case fe.Before == nil:
		return styleCreated.Render("  + " + name)
	case fe.After == nil:
		return styleFailed.Render("  - " + name)
	default:
		return styleChanged.Render("  ~ " + name)
	}
}

func styleApplied(a client.Applied) string {
	switch {
	case a.Skipped:
		return styleSubtitle.Render(fmt.Sprintf("skipped %s", a.FilePath))
	case a.RolledBack:
		return styleFailed.Render(fmt.Sprintf("rolled back %s", a.FilePath))
	case a.Created:
		return styleCreated.Render(fmt.Sprintf("created %s (+%d) [%s]", a.FilePath, a.LinesAdded, a.PatchID))
	default:
		return styleChanged.Render(fmt.Sprintf("patched %s (+%d -%d) [%s]", a.FilePath, a.LinesAdded, a.LinesRemoved, a.PatchID))
	}
}

func styleToolCall(tc client.ToolCall) string {
	args := tc.Arguments
	if len(args) > 80 {
		args = args[:77] + "..."
	}
	return styleToolName.Render("-> "+tc.Name) + " " + styleToolArg.Render(args)
}

// renderTranscript prints a transcript as labelled blocks.
func renderTranscript(msgs []client.Message, width int) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case "user":
			b.WriteString(styleUserLabel.Render("You") + "\n")
			b.WriteString(m.Content + "\n")
		case "assistant":
			b.WriteString(styleAssistantLabel.Render("Assistant") + "\n")
			if m.Content != "" {
				b.WriteString(renderMarkdown(m.Content, width))
			}
			for _, tc := range m.ToolCalls {
				b.WriteString(styleToolCall(tc) + "\n")
			}
		case "tool":
			b.WriteString(styleSystemMsg.Render("tool result "+m.ToolCallID) + "\n")
			b.WriteString(styleToolArg.Render(m.Content) + "\n")
		default:
			b.WriteString(styleSystemMsg.Render(m.Role+": "+m.Content) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
