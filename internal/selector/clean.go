package selector

import (
	"regexp"
	"strings"
)

var titleNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\(Official\s*(Music\s*)?Video\)`),
	regexp.MustCompile(`(?i)\(Official\s*Audio\)`),
	regexp.MustCompile(`(?i)\(Lyric\s*Video\)`),
	regexp.MustCompile(`(?i)\[Official.*?\]`),
	regexp.MustCompile(`(?i)\(HD\)`),
	regexp.MustCompile(`(?i)\(4K\)`),
	regexp.MustCompile(`(?i)ft\..*`),
	regexp.MustCompile(`(?i)feat\..*`),
}

var authorNoise = regexp.MustCompile(`(?i)(VEVO|Official|Music|Channel)`)

// CleanTitle strips the usual upload decorations from a catalog title.
func CleanTitle(title string) string {
	for _, re := range titleNoise {
		title = re.ReplaceAllString(title, "")
	}
	return strings.Trim(title, " -|")
}

// CleanAuthor strips label/channel suffixes from a catalog author.
func CleanAuthor(author string) string {
	return strings.TrimSpace(authorNoise.ReplaceAllString(author, ""))
}
