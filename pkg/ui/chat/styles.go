package chat

import "github.com/charmbracelet/lipgloss"

// Chalkboard palette.
const (
	boardDark  = lipgloss.Color("234")
	boardGreen = lipgloss.Color("22")
	chalk      = lipgloss.Color("255")
	chalkDim   = lipgloss.Color("245")
	chalkBlue  = lipgloss.Color("117")
	chalkPink  = lipgloss.Color("218")
	chalkAmber = lipgloss.Color("221")
	eraserRed  = lipgloss.Color("167")
	frameWood  = lipgloss.Color("137")
)

// theme groups reusable styles for chat UI regions.
type theme struct {
	header      lipgloss.Style
	headerMeta  lipgloss.Style
	divider     lipgloss.Style
	userBox     lipgloss.Style
	userTitle   lipgloss.Style
	botBox      lipgloss.Style
	botTitle    lipgloss.Style
	directBox   lipgloss.Style
	directTitle lipgloss.Style
	deletedBox  lipgloss.Style
	code        lipgloss.Style
	errorBox    lipgloss.Style
	errorTitle  lipgloss.Style
	status      lipgloss.Style
	statusBusy  lipgloss.Style
	statusErr   lipgloss.Style
	hint        lipgloss.Style
	inputLabel  lipgloss.Style
	input       lipgloss.Style
	viewport    lipgloss.Style
}

func cardStyle(border lipgloss.Border, accent lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(accent).
		Background(boardDark).
		Foreground(chalk).
		Padding(0, 1)
}

func cardTitle(accent lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(boardDark).
		Background(accent).
		Padding(0, 1)
}

func emphasis(color lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}

func defaultTheme() theme {
	return theme{
		header:     cardTitle(chalk).Background(boardGreen).Foreground(chalk),
		headerMeta: lipgloss.NewStyle().Foreground(chalkDim),
		divider:    lipgloss.NewStyle().Foreground(frameWood),

		userBox:     cardStyle(lipgloss.RoundedBorder(), chalkAmber),
		userTitle:   cardTitle(chalkAmber),
		botBox:      cardStyle(lipgloss.RoundedBorder(), chalkBlue),
		botTitle:    cardTitle(chalkBlue),
		directBox:   cardStyle(lipgloss.NormalBorder(), chalkPink),
		directTitle: cardTitle(chalkPink),
		deletedBox:  cardStyle(lipgloss.HiddenBorder(), chalkDim).Foreground(chalkDim).Italic(true),
		errorBox:    cardStyle(lipgloss.ThickBorder(), eraserRed).Foreground(eraserRed),
		errorTitle:  cardTitle(eraserRed).Foreground(chalk),
		code:        lipgloss.NewStyle().Foreground(chalkAmber).Background(lipgloss.Color("236")).Padding(0, 1),

		status:     emphasis(chalkDim),
		statusBusy: emphasis(chalkAmber),
		statusErr:  emphasis(eraserRed),
		hint:       lipgloss.NewStyle().Foreground(chalkDim),
		inputLabel: emphasis(chalk),
		input:      cardStyle(lipgloss.RoundedBorder(), frameWood),
		viewport:   cardStyle(lipgloss.ThickBorder(), frameWood).Background(lipgloss.Color("233")),
	}
}
