package links

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/desertthunder/scrobblex/internal/models"
)

func TestResolveID(t *testing.T) {
	r := NewResolver()

	tc := []struct {
		name   string
		kind   Kind
		meta   models.SeriesMetadata
		want   string
		wantOK bool
	}{
		{
			name:   "stored id wins over links",
			kind:   AniList,
			meta:   models.SeriesMetadata{AniListID: 30002, WebLinks: "https://anilist.co/manga/999/"},
			want:   "30002",
			wantOK: true,
		},
		{
			name:   "anilist from link with slug",
			kind:   AniList,
			meta:   models.SeriesMetadata{WebLinks: "https://example.com/x, https://anilist.co/manga/30002/Berserk/"},
			want:   "30002",
			wantOK: true,
		},
		{
			name:   "mal from link",
			kind:   MyAnimeList,
			meta:   models.SeriesMetadata{WebLinks: "https://myanimelist.net/manga/2/Berserk"},
			want:   "2",
			wantOK: true,
		},
		{
			name:   "mangadex uuid",
			kind:   MangaDex,
			meta:   models.SeriesMetadata{WebLinks: "https://mangadex.org/title/801513ba-a712-498c-8f57-cae55b38cc92/berserk"},
			want:   "801513ba-a712-498c-8f57-cae55b38cc92",
			wantOK: true,
		},
		{
			name:   "google books query id",
			kind:   GoogleBooks,
			meta:   models.SeriesMetadata{WebLinks: "https://books.google.com/books?id=abc123&hl=en"},
			want:   "abc123",
			wantOK: true,
		},
		{
			name: "numeric provider rejects text",
			kind: AniList,
			meta: models.SeriesMetadata{WebLinks: "https://anilist.co/manga/berserk/"},
		},
		{
			name: "template without token",
			kind: AniList,
			meta: models.SeriesMetadata{WebLinks: "https://anilist.co/manga/"},
		},
		{
			name: "no links",
			kind: MyAnimeList,
			meta: models.SeriesMetadata{},
		},
		{
			name: "garbage links",
			kind: MangaDex,
			meta: models.SeriesMetadata{WebLinks: ",,, not a url ,%%%"},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ResolveID(tt.kind, tt.meta)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveNumeric(t *testing.T) {
	r := NewResolver()

	assert.Equal(t, int64(2), r.ResolveNumeric(MyAnimeList, models.SeriesMetadata{WebLinks: "https://myanimelist.net/manga/2/"}))
	assert.Zero(t, r.ResolveNumeric(AniList, models.SeriesMetadata{}))
}

func TestRegister(t *testing.T) {
	r := NewResolver()
	r.Register(Provider{Kind: AniList, Template: "https://anilist.co/novel/", Token: 0, Numeric: true})

	got, ok := r.ExtractID("https://anilist.co/novel/77/", AniList)
	assert.True(t, ok)
	assert.Equal(t, "77", got)

	_, ok = r.ExtractID("https://anilist.co/novel/77/", Kind("unknown"))
	assert.False(t, ok)
}

func TestBuildURL(t *testing.T) {
	r := NewResolver()

	assert.Equal(t, "https://anilist.co/manga/30002/", r.BuildURL(AniList, "30002"))
	assert.Equal(t, "https://mangadex.org/title/abc/", r.BuildURL(MangaDex, "abc"))
	assert.Equal(t, "https://books.google.com/books?id=abc123", r.BuildURL(GoogleBooks, "abc123"))
	assert.Empty(t, r.BuildURL(Kind("unknown"), "1"))
	assert.Empty(t, r.BuildURL(AniList, ""))

	id, ok := r.ExtractID(r.BuildURL(MyAnimeList, "42"), MyAnimeList)
	assert.True(t, ok)
	assert.Equal(t, "42", id)
}
