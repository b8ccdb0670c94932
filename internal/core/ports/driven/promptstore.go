package driven

// Prompt names.
const (
	// PromptClassify is the system prompt of the LLM-backed tag classifier.
	// It takes one %s placeholder: the comma-separated vocabulary.
	PromptClassify = "classify"
)

// PromptStore loads user-customisable prompt templates.
type PromptStore interface {
	// Load returns the template for name.
	Load(name string) (string, error)
}
