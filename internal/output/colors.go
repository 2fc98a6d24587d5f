package output

import (
	"github.com/fatih/color"
)

// ColorScheme colors each element of the call output.
type ColorScheme struct {
	Method      *color.Color
	URL         *color.Color
	Endpoint    *color.Color
	StatusOK    *color.Color
	StatusWarn  *color.Color
	StatusError *color.Color
	HeaderKey   *color.Color
	Label       *color.Color
	Error       *color.Color
}

// NewColorScheme returns the palette, with every color disabled unless
// enabled is set.
func NewColorScheme(enabled bool) *ColorScheme {
	paint := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if !enabled {
			c.DisableColor()
		}
		return c
	}
	return &ColorScheme{
		Method:      paint(color.FgHiBlue, color.Bold),
		URL:         paint(color.FgCyan, color.Underline),
		Endpoint:    paint(color.FgMagenta, color.Bold),
		StatusOK:    paint(color.FgHiGreen),
		StatusWarn:  paint(color.FgHiYellow),
		StatusError: paint(color.FgHiRed),
		HeaderKey:   paint(color.FgHiBlack),
		Label:       paint(color.Faint),
		Error:       paint(color.FgRed),
	}
}

// Status picks the color for an HTTP status code.
func (s *ColorScheme) Status(status int) *color.Color {
	switch {
	case status >= 200 && status < 300:
		return s.StatusOK
	case status >= 300 && status < 400:
		return s.StatusWarn
	default:
		return s.StatusError
	}
}

func icon(symbol string, fg color.Attribute, noColor bool) string {
	if noColor {
		return symbol
	}
	return color.New(fg).Sprint(symbol)
}

// SuccessIcon is a check mark, green unless noColor.
func SuccessIcon(noColor bool) string { return icon("✓", color.FgGreen, noColor) }

// ErrorIcon is a cross, red unless noColor.
func ErrorIcon(noColor bool) string { return icon("✗", color.FgRed, noColor) }
