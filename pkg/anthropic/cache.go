package anthropic

// BuildCachedSystemBlocks splits the system prompt into a stable instruction
// block carrying a cache breakpoint and an optional per-request context block.
// The stable block is identical across chat exchanges, so repeated requests
// read it from the prompt cache.
func BuildCachedSystemBlocks(stable, dynamic string) []SystemBlock {
	blocks := []SystemBlock{
		{
			Text: stable,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
	if dynamic != "" {
		blocks = append(blocks, SystemBlock{Text: dynamic})
	}
	return blocks
}
