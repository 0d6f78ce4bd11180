package ai

import (
	"strings"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// buildPrompt asks the model to place one bank narration in the closed
// taxonomy and answer with a single JSON object.
func buildPrompt(description string) string {
	var b strings.Builder
	b.WriteString("You are a bank transaction classifier.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Classify the transaction narration below into ONE base category and, if possible, one sub-category.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n\n")

	b.WriteString("Use ONLY the following base categories and sub-categories:\n\n")
	for _, base := range domain.BaseCategories() {
		if base == domain.CategoryUnclassified {
			continue
		}
		b.WriteString(string(base) + ":\n")
		for _, sub := range domain.SubCategories(base) {
			b.WriteString("  - " + sub + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Response format:\n")
	b.WriteString(`{"base": "<BASE CATEGORY>", "sub": "<SUB-CATEGORY or empty string>", "reason": "<short reason>", "confidence": <number between 0 and 1>}` + "\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("1. \"base\" must be EXACTLY one of the base categories above.\n")
	b.WriteString("2. \"sub\" must belong to the chosen base, or be \"\" when none fits.\n")
	b.WriteString("3. If you cannot tell, use base \"UNCLASSIFIED\" with sub \"\".\n")
	b.WriteString("4. Money moved between the customer's own accounts is TRANSFER, not INCOME or EXPENSES.\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n\n")

	b.WriteString("Narration: ")
	b.WriteString(strings.TrimSpace(description))
	b.WriteString("\n")
	return b.String()
}
