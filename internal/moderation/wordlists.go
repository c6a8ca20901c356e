package moderation

import "regexp"

// Common spam patterns
var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)buy\s+now`),
	regexp.MustCompile(`(?i)click\s+here`),
	regexp.MustCompile(`(?i)free\s+money`),
	regexp.MustCompile(`(?i)make\s+\$?\d+`),
	regexp.MustCompile(`(?i)earn\s+\$?\d+`),
	regexp.MustCompile(`(?i)(viagra|cialis)`),
	regexp.MustCompile(`(?i)limited\s+time\s+offer`),
	regexp.MustCompile(`(?i)act\s+now`),
	regexp.MustCompile(`(?i)winner`),
	regexp.MustCompile(`(?i)congratulations.*won`),
	regexp.MustCompile(`(?i)100%\s+free`),
}

// Hate speech patterns (minimal built-in set, admins extend via the keyword
// blacklist)
var hatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)kill\s+all`),
	regexp.MustCompile(`(?i)death\s+to`),
	regexp.MustCompile(`(?i)go\s+back\s+to\s+your\s+country`),
}

var urlPattern = regexp.MustCompile(`(?i)https?://[a-z0-9$\-_@.&+!*(),%/?=#~]+|www\.[\w\-]+\.[\w\-]+`)

var hashtagPattern = regexp.MustCompile(`#\w+`)
