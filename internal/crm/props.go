package crm

import (
	"strings"

	"github.com/jomei/notionapi"

	"github.com/presson-ventures/discovery-cli/internal/model"
)

// Property extraction helpers tolerant of both value and pointer forms —
// the API client unmarshals pointers, tests construct values.

func extractTitle(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return joinRichText(p.Title)
	case notionapi.TitleProperty:
		return joinRichText(p.Title)
	}
	return ""
}

func extractRichText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		return joinRichText(p.RichText)
	case notionapi.RichTextProperty:
		return joinRichText(p.RichText)
	}
	return ""
}

func extractSelect(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	}
	return ""
}

func extractURL(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.URLProperty:
		return p.URL
	case notionapi.URLProperty:
		return p.URL
	}
	return ""
}

func joinRichText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range parts {
		b.WriteString(rt.PlainText)
		if rt.PlainText == "" && rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

// InferStage estimates the investment stage from a prospect's signals.
// Funding amounts dominate; hiring volume is the fallback heuristic.
func InferStage(p model.Prospect) string {
	for _, s := range p.Signals {
		if s.SignalType != model.SignalFundingEvent {
			continue
		}
		amount, _ := s.RawData["amount"].(float64)
		switch {
		case amount > 10_000_000:
			return "Series A"
		case amount > 2_000_000:
			return "Seed +"
		case amount > 0:
			return "Seed"
		}
	}

	for _, s := range p.Signals {
		if s.SignalType != model.SignalHiring && s.SignalType != model.SignalJobPosting {
			continue
		}
		positions, _ := s.RawData["total_positions"].(float64)
		switch {
		case positions >= 20:
			return "Seed +"
		case positions >= 5:
			return "Seed"
		}
	}

	return "Pre-Seed"
}
