package advisor

import (
	"fmt"
	"strings"

	"github.com/krishimitra/krishimitra/internal/analysis"
)

// languageNames maps UI language codes to names the advisor understands.
var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi (हिंदी)",
	"mr": "Marathi (मराठी)",
	"pa": "Punjabi (ਪੰਜਾਬੀ)",
	"ml": "Malayalam (മലയാളം)",
	"ta": "Tamil (தமிழ்)",
	"te": "Telugu (తెలుగు)",
	"kn": "Kannada (ಕನ್ನಡ)",
}

// LanguageName resolves a language code to its display name, defaulting
// to English.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	return languageNames["en"]
}

// SummaryLines renders each analysis result as one verbatim line,
// failures included.
func SummaryLines(results []analysis.Result) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.Summary())
	}
	return lines
}

// BuildMediaRequest composes the advisor request for a turn that carries
// newly analyzed attachments. The analysis summary is embedded verbatim:
// low-confidence and failed items are flagged, never suppressed.
func BuildMediaRequest(userText, language string, results []analysis.Result) Request {
	lines := SummaryLines(results)
	langName := LanguageName(language)

	var sb strings.Builder
	sb.WriteString("You are an expert agricultural advisor. A farmer submitted ")
	fmt.Fprintf(&sb, "%d attachment(s); our analysis system reported:\n", len(results))
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if strings.TrimSpace(userText) != "" {
		fmt.Fprintf(&sb, "\nThe farmer asks: %q\n", userText)
		fmt.Fprintf(&sb, "\nExplain the findings, give chemical and organic treatment options with doses and timing, prevention tips, and a direct answer to the question. Reply ONLY in %s. Be specific and actionable.", langName)
	} else {
		fmt.Fprintf(&sb, "\nGive a concise explanation of the findings with immediate treatment actions and prevention tips. Reply ONLY in %s.", langName)
	}

	return Request{
		Prompt:         sb.String(),
		ContextSummary: lines,
		Language:       language,
	}
}

// BuildFollowUpRequest composes the advisor request for a plain-text turn
// that references previously analyzed media. The stored analyses are
// reused verbatim; nothing is re-analyzed.
func BuildFollowUpRequest(userText, language string, prior []analysis.Result) Request {
	lines := SummaryLines(prior)
	langName := LanguageName(language)

	var sb strings.Builder
	sb.WriteString("You are an expert agricultural advisor. Earlier analysis of the farmer's attachments reported:\n")
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nThe farmer now asks: %q\n", userText)
	fmt.Fprintf(&sb, "\nAnswer with the earlier findings in mind. Reply ONLY in %s.", langName)

	return Request{
		Prompt:         sb.String(),
		ContextSummary: lines,
		Language:       language,
	}
}

// BuildPlainRequest composes the advisor request for a free-text turn
// with no media context.
func BuildPlainRequest(userText, language string) Request {
	langName := LanguageName(language)
	return Request{
		Prompt:   fmt.Sprintf("You are an expert agricultural advisor helping a farmer. Reply ONLY in %s.\n\nThe farmer asks: %q", langName, userText),
		Language: language,
	}
}
