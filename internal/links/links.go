// package links resolves external tracker identifiers for a series from its metadata or its web links.
package links

import (
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/scrobblex/internal/models"
)

// Kind names an external provider.
type Kind string

const (
	AniList     Kind = "anilist"
	MyAnimeList Kind = "mal"
	MangaDex    Kind = "mangadex"
	GoogleBooks Kind = "googlebooks"
)

// Provider describes how ids for one [Kind] are embedded in links.
//
// Template is the URL prefix a link must start with. Token is the index of the path segment, counted after the
// template, that carries the id. Numeric providers reject ids that are not base-10 integers.
type Provider struct {
	Kind     Kind
	Template string
	Token    int
	Numeric  bool
}

// DefaultProviders are the link templates registered by [NewResolver].
var DefaultProviders = []Provider{
	{Kind: AniList, Template: "https://anilist.co/manga/", Token: 0, Numeric: true},
	{Kind: MyAnimeList, Template: "https://myanimelist.net/manga/", Token: 0, Numeric: true},
	{Kind: MangaDex, Template: "https://mangadex.org/title/", Token: 0},
	{Kind: GoogleBooks, Template: "https://books.google.com/books?id=", Token: 0},
}

// Resolver extracts ids from series metadata. It is safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	providers map[Kind][]Provider
}

// NewResolver creates a [Resolver] with [DefaultProviders] registered.
func NewResolver() *Resolver {
	r := &Resolver{providers: make(map[Kind][]Provider)}
	for _, p := range DefaultProviders {
		r.Register(p)
	}
	return r
}

// Register adds a link template. Several templates may be registered for one kind; they are tried in order.
func (r *Resolver) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Kind] = append(r.providers[p.Kind], p)
}

func (r *Resolver) lookup(kind Kind) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[kind]
}

// ResolveID returns the id of series for kind.
//
// An id stored on the metadata wins; otherwise the web links are searched.
// Malformed or absent links yield ("", false).
func (r *Resolver) ResolveID(kind Kind, meta models.SeriesMetadata) (string, bool) {
	switch kind {
	case AniList:
		if meta.AniListID > 0 {
			return strconv.FormatInt(meta.AniListID, 10), true
		}
	case MyAnimeList:
		if meta.MalID > 0 {
			return strconv.FormatInt(meta.MalID, 10), true
		}
	}

	return r.ExtractID(meta.WebLinks, kind)
}

// ResolveNumeric is [Resolver.ResolveID] for numeric providers, returning 0 when no id is found.
func (r *Resolver) ResolveNumeric(kind Kind, meta models.SeriesMetadata) int64 {
	id, ok := r.ResolveID(kind, meta)
	if !ok {
		return 0
	}

	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ExtractID finds the first link in a comma-separated list that matches a template for kind and returns its id token.
func (r *Resolver) ExtractID(webLinks string, kind Kind) (string, bool) {
	providers := r.lookup(kind)
	if len(providers) == 0 {
		return "", false
	}

	for link := range strings.SplitSeq(webLinks, ",") {
		link = strings.TrimSpace(link)
		if link == "" {
			continue
		}

		for _, p := range providers {
			if id, ok := p.extract(link); ok {
				return id, true
			}
		}
	}

	return "", false
}

func (p Provider) extract(link string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(link), strings.ToLower(p.Template)) {
		return "", false
	}

	rest := link[len(p.Template):]
	if i := strings.IndexAny(rest, "?#&"); i >= 0 {
		rest = rest[:i]
	}

	tokens := strings.Split(strings.Trim(rest, "/"), "/")
	if p.Token < 0 || p.Token >= len(tokens) {
		return "", false
	}

	id, err := url.PathUnescape(strings.TrimSpace(tokens[p.Token]))
	if err != nil || id == "" {
		return "", false
	}

	if p.Numeric {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return "", false
		}
	}

	return id, true
}

// BuildURL returns the link for id using the first template registered for kind, or "" for unknown kinds.
func (r *Resolver) BuildURL(kind Kind, id string) string {
	providers := r.lookup(kind)
	if len(providers) == 0 || id == "" {
		return ""
	}

	template := providers[0].Template
	if strings.HasSuffix(template, "=") {
		return template + id
	}
	return template + id + "/"
}
