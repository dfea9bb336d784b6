package extractor

import (
	"regexp"
	"strings"

	"resume-match-go/internal/types"
)

// Text cleaning allow-list: letters, digits, whitespace and basic
// punctuation. Everything else (control chars, emoji, stray glyphs from PDF
// extraction) is dropped.
var (
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N}\s.,;:()\-+@/#&%'"?!]`)
	spaceRuns       = regexp.MustCompile(`[ \t]+`)
	blankLineRuns   = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes extracted text: CRLF to LF, allow-listed characters
// only, single spaces, blank-line runs collapsed to one blank line.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = disallowedChars.ReplaceAllString(text, " ")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// sectionPattern pairs a section name with its heading-detection regex. The
// body capture is non-greedy up to the next known heading or end of text.
type sectionPattern struct {
	name    string
	pattern *regexp.Regexp
}

// Heading keyword alternations, Portuguese and English. Section regions run
// from a heading line to the next heading of any other section. Overlapping
// or nested sections are a known limitation of this heuristic; regions are
// detected independently and may intersect on unusual layouts.
const (
	resumeExperienceHeads = `experi[eê]ncia(?: profissional)?|hist[oó]rico profissional|work experience|experience|employment history`
	resumeEducationHeads  = `educa[cç][aã]o|forma[cç][aã]o(?: acad[eê]mica)?|education|academic background`
	resumeSkillsHeads     = `habilidades|compet[eê]ncias|conhecimentos(?: t[eé]cnicos)?|skills|technical skills`
	resumeSummaryHeads    = `resumo|objetivo|perfil(?: profissional)?|summary|objective|about me`

	jobRequirementsHeads     = `requisitos|qualifica[cç][oõ]es|requirements|qualifications`
	jobResponsibilitiesHeads = `responsabilidades|atribui[cç][oõ]es|responsibilities|duties|what you will do`
	jobBenefitsHeads         = `benef[ií]cios|benefits|what we offer`
	jobCompanyHeads          = `sobre (?:a )?empresa|quem somos|about (?:the )?company|about us`
)

func buildSectionPattern(name, ownHeads string, otherHeads []string) sectionPattern {
	stop := strings.Join(otherHeads, "|")
	// Heading on its own line (possibly with trailing colon), body up to the
	// next heading of a different section or end of input.
	expr := `(?is)(?:^|\n)\s*(?:` + ownHeads + `)\s*:?\s*\n(.*?)(?:\n\s*(?:` + stop + `)\s*:?\s*\n|$)`
	return sectionPattern{name: name, pattern: regexp.MustCompile(expr)}
}

var resumeSectionPatterns = []sectionPattern{
	buildSectionPattern(types.SectionExperience, resumeExperienceHeads,
		[]string{resumeEducationHeads, resumeSkillsHeads, resumeSummaryHeads}),
	buildSectionPattern(types.SectionEducation, resumeEducationHeads,
		[]string{resumeExperienceHeads, resumeSkillsHeads, resumeSummaryHeads}),
	buildSectionPattern(types.SectionSkills, resumeSkillsHeads,
		[]string{resumeExperienceHeads, resumeEducationHeads, resumeSummaryHeads}),
	buildSectionPattern(types.SectionSummary, resumeSummaryHeads,
		[]string{resumeExperienceHeads, resumeEducationHeads, resumeSkillsHeads}),
}

var jobSectionPatterns = []sectionPattern{
	buildSectionPattern(types.SectionRequirements, jobRequirementsHeads,
		[]string{jobResponsibilitiesHeads, jobBenefitsHeads, jobCompanyHeads}),
	buildSectionPattern(types.SectionResponsibilities, jobResponsibilitiesHeads,
		[]string{jobRequirementsHeads, jobBenefitsHeads, jobCompanyHeads}),
	buildSectionPattern(types.SectionBenefits, jobBenefitsHeads,
		[]string{jobRequirementsHeads, jobResponsibilitiesHeads, jobCompanyHeads}),
	buildSectionPattern(types.SectionCompanyInfo, jobCompanyHeads,
		[]string{jobRequirementsHeads, jobResponsibilitiesHeads, jobBenefitsHeads}),
}

// DetectSections splits cleaned text into named regions using heading
// heuristics. Sections not found are simply absent; that is not an error.
func DetectSections(text string, kind types.DocumentKind) map[string]string {
	patterns := resumeSectionPatterns
	if kind == types.KindJobDescription {
		patterns = jobSectionPatterns
	}

	sections := make(map[string]string)
	for _, sp := range patterns {
		match := sp.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		body := strings.TrimSpace(match[1])
		if body != "" {
			sections[sp.name] = body
		}
	}
	return sections
}

// Contact extraction regexes. Phone is Brazilian format: optional +55,
// 2-digit area code, optional mobile 9, 4+4 digits.
var (
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern    = regexp.MustCompile(`(?:\+?55[\s.]?)?\(?\d{2}\)?[\s.]?9?\d{4}[-\s.]?\d{4}`)
	linkedinPattern = regexp.MustCompile(`linkedin\.com/in/([a-zA-Z0-9\-_.]+)`)
)

// ExtractContactInfo captures email, phone and LinkedIn slug from resume
// text. First match wins; fields without a match are left out of the map.
func ExtractContactInfo(text string) map[string]string {
	info := make(map[string]string)

	if email := emailPattern.FindString(text); email != "" {
		info[types.ContactEmail] = email
	}
	if phone := phonePattern.FindString(text); phone != "" {
		info[types.ContactPhone] = strings.TrimSpace(phone)
	}
	if m := linkedinPattern.FindStringSubmatch(text); m != nil {
		info[types.ContactLinkedIn] = m[1]
	}
	return info
}

// QualityScore is the additive extraction-quality heuristic, capped at 100.
// Advisory only: it flags likely-bad uploads to the user and must not gate
// downstream processing.
func QualityScore(text string, sections map[string]string, contactInfo map[string]string) float64 {
	score := 0.0
	if text == "" {
		return score
	}
	score += 20 // has content

	words := len(strings.Fields(text))
	if words > 100 {
		score += 20
	}
	if words > 300 {
		score += 20
	}
	if len(sections) > 0 {
		score += 20 // at least one recognized section heading
	}
	if _, ok := contactInfo[types.ContactEmail]; ok {
		score += 10
	}
	if words >= 50 && len(sections) >= 2 {
		score += 10 // enough material to score sections against each other
	}

	if score > 100 {
		score = 100
	}
	return score
}

// Common Portuguese function words, used for a cheap binary language guess.
var portugueseFunctionWords = map[string]bool{
	"de": true, "e": true, "o": true, "a": true, "que": true, "do": true,
	"da": true, "em": true, "um": true, "uma": true, "para": true,
	"com": true, "os": true, "as": true, "no": true, "na": true,
	"por": true, "mais": true, "dos": true, "das": true, "como": true,
	"mas": true, "ao": true, "seu": true, "sua": true, "ou": true,
}

// DetectLanguage classifies text as "pt-br" or "en" by counting Portuguese
// function words among the first 50 tokens. A UI localization hint, not a
// correctness requirement.
func DetectLanguage(text string) string {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) > 50 {
		tokens = tokens[:50]
	}

	hits := 0
	for _, token := range tokens {
		if portugueseFunctionWords[strings.Trim(token, ".,;:()\"'")] {
			hits++
		}
	}
	if hits >= 3 {
		return "pt-br"
	}
	return "en"
}
