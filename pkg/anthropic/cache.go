package anthropic

// CachedSystem wraps a persona prompt in a single system block with an
// ephemeral cache breakpoint. Persona prompts repeat across every job, so
// later calls for the same role read the prompt from the provider cache.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
