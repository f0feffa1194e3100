package config

const (
	DefaultMaxTokens = 1024

	// Task authoring replies carry full metadata and need more room.
	TaskDefineMaxTokens = 8192

	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)
