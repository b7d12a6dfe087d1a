package provider

import "fmt"

// PromptMode selects the OCR instruction variant
type PromptMode int

const (
	// PromptStandard is the full Markdown conversion instruction
	PromptStandard PromptMode = iota

	// PromptTerse is a shorter instruction for small open models
	PromptTerse
)

// String returns the mode name
func (m PromptMode) String() string {
	switch m {
	case PromptTerse:
		return "terse"
	default:
		return "standard"
	}
}

// PromptModeFor returns the mode the catalog recommends for a model
func PromptModeFor(tersePrompt bool) PromptMode {
	if tersePrompt {
		return PromptTerse
	}
	return PromptStandard
}

const ocrPrompt = "Convert the image to Markdown, including all content with appropriate formatting: " +
	"e.g., headers, footers, lists, emphasis, tables. " +
	"For mathematical expressions, must convert them to LaTeX format, encapsulating them in $...$ for inline math " +
	"or $$...$$ for display math, as appropriate. " +
	"Preserve the content's logical flow and structure. " +
	"The output must be pure Markdown, no explanations or code fences. " +
	"Must include all content from the image."

const ocrPromptTerse = "Transcribe all content of the image as pure Markdown. " +
	"Write math as LaTeX in $...$ or $$...$$. " +
	"Output only the Markdown."

// SummarizeInstruction is the summarize task instruction
const SummarizeInstruction = "Summarize the provided Markdown text into concise, key bullet points. " +
	"Focus on capturing the main ideas, key steps, or critical information. " +
	"Aim for brevity, while retaining the essential meaning."

// OCRPrompt returns the OCR instruction for mode
func OCRPrompt(mode PromptMode) string {
	if mode == PromptTerse {
		return ocrPromptTerse
	}
	return ocrPrompt
}

// SummarizeUserPrompt wraps text in the document delimiter followed by the instruction
func SummarizeUserPrompt(text string) string {
	return fmt.Sprintf("Here is a Markdown document you will process (wrapped by tag <doc>): \n<doc>%s</doc> \n%s", text, SummarizeInstruction)
}
