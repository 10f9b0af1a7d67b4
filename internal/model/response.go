package model

// ProviderResponse is an accepted provider reply stored by prompt hash.
type ProviderResponse struct {
	PromptHash string
	Provider   string
	Text       string
	Ctime      int64
}
