package promptstyle

import "strings"

const marker = "BLACKBOARD_PROMPT_STYLE_V1"

// ApplySystem prepends a short guidance block to a system prompt. Prompts that
// already carry the marker are returned unchanged.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou write short classroom lessons for a narrated blackboard.")
	b.WriteString("\nFollow the system and user instructions precisely.")
	switch mode {
	case "json":
		b.WriteString("\nReturn a single JSON object that conforms to the schema and contains no extra keys.")
		b.WriteString("\nDo not wrap the JSON in code fences.")
	case "speech":
		b.WriteString("\nRead the text exactly as written.")
	default:
		b.WriteString("\nBe concise.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return strings.TrimSpace(b.String())
}
