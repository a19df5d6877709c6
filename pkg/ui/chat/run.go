package chat

import (
	"context"
	"fmt"

	"mathbot/pkg/channel/console"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Transport is the chat the UI drives. *console.Console satisfies it.
type Transport interface {
	Post(ctx context.Context, text string) (string, error)
	Edit(ctx context.Context, id string, text string) error
	Delete(ctx context.Context, id string) error
	Entries() <-chan console.Entry
}

// RuntimeInfo is shown in the header.
type RuntimeInfo struct {
	Grammar  string
	Latex    string
	Sandbox  bool
	ImageDir string
}

// Run starts the interactive console and blocks until the user quits.
func Run(ctx context.Context, transport Transport, info RuntimeInfo) error {
	model := newModel(ctx, transport, info)
	program := tea.NewProgram(model, tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("88")).
		Padding(1, 2)

	return style.Render("∑ Thanks for using mathbot")
}
