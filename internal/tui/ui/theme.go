package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatline/internal/render"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
	SentColor         tcell.Color
	ReceivedColor     tcell.Color
	MutedColor        tcell.Color
	LinkColor         tcell.Color
	OnlineColor       tcell.Color
	UnreadColor       tcell.Color
}

// DefaultTheme returns a dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		BorderFocusColor:  tcell.ColorLightSkyBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorOrange,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,
		SentColor:         tcell.ColorLightGreen,
		ReceivedColor:     tcell.ColorAqua,
		MutedColor:        tcell.ColorGray,
		LinkColor:         tcell.ColorYellow,
		OnlineColor:       tcell.ColorLime,
		UnreadColor:       tcell.ColorOrange,
	}
}

// MessageStyle maps the theme onto the message renderer's markup colors.
func (t *Theme) MessageStyle() render.TerminalStyle {
	return render.TerminalStyle{
		Sent:     ColorName(t.SentColor),
		Received: ColorName(t.ReceivedColor),
		Muted:    ColorName(t.MutedColor),
		Error:    ColorName(t.FlashErrColor),
		Link:     ColorName(t.LinkColor),
	}
}
