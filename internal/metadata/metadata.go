package metadata

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

const (
	maxTitleRunes = 100
	maxTagRunes   = 30
	maxTagsTotal  = 450
	maxTags       = 25
)

var singleTitles = []string{
	"{title} - {artist} (Slowed + Reverb) 🌙",
	"{title} [Slowed + Reverb] | {artist} ✨",
	"{title} (Slowed to Perfection + Reverb) ~ {artist}",
	"🌊 {title} - {artist} | Slowed + Reverb",
	"{title} ♾ Slowed & Reverb | {artist} 💫",
}

var mashupTitles = []string{
	"{title} [Slowed + Reverb Mashup] 🎛️",
	"{title} (Slowed + Reverb Mashup) ✨",
	"🎵 {title} | Slowed + Reverb Mashup",
	"{title} ~ Slowed & Reverb Mashup 🌙",
}

var baseTags = []string{
	"slowed and reverb",
	"slowed reverb",
	"lofi",
	"slowed songs",
	"aesthetic music",
	"chill music",
	"trending songs 2025",
	"viral songs",
}

var mashupTags = []string{
	"mashup",
	"song mashup",
	"slowed mashup",
	"reverb mashup",
	"music mashup",
}

var hashtags = []string{"#slowedreverb", "#lofi", "#aesthetic", "#trending2025"}

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var descriptionTmpl = template.Must(template.New("description").Parse(`🎵 {{.Title}} (Slowed + Reverb)
👤 Original Artist: {{.Artist}}
🎬 Channel: {{.Channel}}

` + rule + `
✨ About This Edit
` + rule + `
{{.About}}

` + rule + `
📜 Credits
` + rule + `
{{.Credits}}
🔗 Original: {{.OriginalURL}}
🎛️  Audio Edit: {{.Channel}}
📅 Uploaded: {{.Date}}

` + rule + `
⚖️  Copyright Disclaimer
` + rule + `
This is a fan-made edit for entertainment. All rights belong to the original artists and their labels. No copyright infringement intended. If you are the copyright owner and wish this removed, please contact us.

Under Section 107 of the Copyright Act 1976, allowance is made for "fair use" for transformation and commentary.

` + rule + `
🔔 Support
` + rule + `
✅ Like, Subscribe, Share
✅ Turn on notifications for daily uploads

{{.Hashtags}}
`))

type descriptionData struct {
	Title       string
	Artist      string
	Channel     string
	About       string
	Credits     string
	OriginalURL string
	Date        string
	Hashtags    string
}

// Defaults are the platform fields copied onto every publish.
type Defaults struct {
	Channel    string
	CategoryID string
	Privacy    string
	Language   string
}

// Generator builds titles, descriptions and tags for a publish.
type Generator struct {
	defaults Defaults
	writer   ports.DescriptionWriter
	logger   *slog.Logger
	pick     func(n int) int
	now      func() time.Time
}

// NewGenerator constructs a generator. writer is optional.
func NewGenerator(defaults Defaults, writer ports.DescriptionWriter, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{defaults: defaults, writer: writer, logger: logger, pick: rand.Intn, now: time.Now}
}

// Build returns the metadata for a publish of the given tracks. A mashup joins titles with " x ".
func (g *Generator) Build(ctx context.Context, candidates []domain.Candidate) (domain.Metadata, error) {
	if len(candidates) == 0 {
		return domain.Metadata{}, fmt.Errorf("metadata: no candidates")
	}
	mashup := len(candidates) > 1

	titles := make([]string, 0, len(candidates))
	artists := make([]string, 0, len(candidates))
	for _, c := range candidates {
		titles = append(titles, c.CleanTitle)
		artists = append(artists, c.CleanAuthor)
	}
	title := strings.Join(titles, " x ")
	artist := strings.Join(artists, ", ")

	about, credits := g.about(ctx, title, artist, mashup)

	data := descriptionData{
		Title:       title,
		Artist:      artist,
		Channel:     g.defaults.Channel,
		About:       about,
		Credits:     credits,
		OriginalURL: candidates[0].SourceURL(),
		Date:        g.now().UTC().Format("January 02, 2006"),
		Hashtags:    g.hashtags(),
	}
	var desc bytes.Buffer
	if err := descriptionTmpl.Execute(&desc, data); err != nil {
		return domain.Metadata{}, fmt.Errorf("metadata: render description: %w", err)
	}

	return domain.Metadata{
		Title:       g.title(title, artist, mashup),
		Description: desc.String(),
		Tags:        Tags(tagCandidates(titles, artists, mashup)),
		CategoryID:  g.defaults.CategoryID,
		Privacy:     g.defaults.Privacy,
		Language:    g.defaults.Language,
	}, nil
}

func (g *Generator) title(title, artist string, mashup bool) string {
	templates := singleTitles
	if mashup {
		templates = mashupTitles
	}
	tmpl := templates[g.pick(len(templates))]
	out := strings.NewReplacer("{title}", title, "{artist}", artist).Replace(tmpl)
	return Truncate(out, maxTitleRunes)
}

func (g *Generator) about(ctx context.Context, title, artist string, mashup bool) (string, string) {
	var about, credits string
	if mashup {
		about = "This is a mashup of two trending songs slowed to 80% with reverb, creating a dreamy, lofi aesthetic. Perfect for studying, late-night drives, or just vibing. 🌙\n\n" +
			"The songs blend seamlessly with a smooth crossfade, giving you the best of both tracks in one unique experience."
		credits = fmt.Sprintf("🎤 Mashup: %s\n🎸 Original Artists: %s", title, artist)
	} else {
		about = fmt.Sprintf("This is a slowed + reverb version of %q by %s. The audio has been slowed to 80%% and enhanced with warm reverb for a dreamy, lofi aesthetic, perfect for studying, late-night drives, or just vibing. 🌙", title, artist)
		credits = fmt.Sprintf("🎤 Original Song: %s\n🎸 Artist: %s", title, artist)
	}

	if g.writer == nil {
		return about, credits
	}
	written, err := g.writer.Describe(ctx, title, artist, mashup)
	if err != nil || strings.TrimSpace(written) == "" {
		g.logger.Warn("description writer failed, using template text", "error", err)
		return about, credits
	}
	return strings.TrimSpace(written), credits
}

func (g *Generator) hashtags() string {
	shuffled := append([]string(nil), hashtags...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := g.pick(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return strings.Join(shuffled, " ")
}

func tagCandidates(titles, artists []string, mashup bool) []string {
	title := strings.Join(titles, " x ")
	if mashup {
		tags := []string{clip(title), clip(title + " mashup")}
		if len(titles) == 2 {
			a, b := strings.ToLower(titles[0]), strings.ToLower(titles[1])
			tags = append(tags, clip(a), clip(b), clip(a+" "+b))
		}
		tags = append(tags, mashupTags...)
		return append(tags, baseTags...)
	}
	artist := strings.Join(artists, ", ")
	tags := []string{clip(title), clip(title + " slowed"), clip(artist), clip(artist + " slowed")}
	return append(tags, baseTags...)
}

// Tags dedupes case-insensitively and enforces the platform limits: each tag at most 30 runes,
// at most 25 tags, at most 450 runes in total.
func Tags(candidates []string) []string {
	var (
		out   []string
		total int
		seen  = make(map[string]bool)
	)
	for _, tag := range candidates {
		tag = strings.TrimSpace(tag)
		n := len([]rune(tag))
		key := strings.ToLower(tag)
		if tag == "" || n > maxTagRunes || seen[key] {
			continue
		}
		if total+n > maxTagsTotal {
			break
		}
		out = append(out, tag)
		seen[key] = true
		total += n
		if len(out) >= maxTags {
			break
		}
	}
	return out
}

// Truncate shortens s to at most limit runes, ending in "..." when cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func clip(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > maxTagRunes {
		runes = runes[:maxTagRunes]
	}
	return strings.TrimSpace(string(runes))
}
