// Package render prints engine results as terminal tables or JSON.
package render

import (
	"github.com/fatih/color"

	"github.com/jacklau/dispatch/internal/model"
)

// Colors for console labels.
var (
	urgentColor   = color.New(color.FgRed, color.Bold)
	escalateColor = color.New(color.FgMagenta, color.Bold)
	warningColor  = color.New(color.FgYellow)
	quietColor    = color.New(color.FgHiBlack)
)

// LevelLabel returns the colored escalation level name.
func LevelLabel(l model.EscalationLevel) string {
	switch l {
	case model.LevelUrgent:
		return urgentColor.Sprint(l.String())
	case model.LevelEscalate:
		return escalateColor.Sprint(l.String())
	case model.LevelWarning:
		return warningColor.Sprint(l.String())
	default:
		return quietColor.Sprint(l.String())
	}
}

// SeverityLabel returns the colored severity name.
func SeverityLabel(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return urgentColor.Sprint(s.String())
	case model.SeverityHigh:
		return escalateColor.Sprint(s.String())
	case model.SeverityMedium:
		return warningColor.Sprint(s.String())
	default:
		return s.String()
	}
}

// UrgencyLabel returns the colored urgency name.
func UrgencyLabel(u model.Urgency) string {
	switch u {
	case model.UrgencyHigh:
		return urgentColor.Sprint(string(u))
	case model.UrgencyMedium:
		return warningColor.Sprint(string(u))
	default:
		return quietColor.Sprint(string(u))
	}
}
