// Package category resolves a link card's category from its URL using a
// static domain rule table, path heuristics and provider mappings, and
// optionally enriches the result with provider-specific structured facts.
package category

// Categories produced by the resolver.
const (
	CategorySoftware = "software"
	CategoryBook     = "book"
	CategoryMovie    = "movie"
	CategoryMusic    = "music"
	CategoryVideo    = "video"
	CategoryRecipe   = "recipe"
	CategoryArticle  = "article"
	CategoryProduct  = "product"
	CategoryPodcast  = "podcast"
	CategorySocial   = "social"
	CategoryDesign   = "design"
	CategoryOther    = "other"
)

// Providers recognized by the rule table and the enrichment registry.
const (
	ProviderGitHub     = "github"
	ProviderGitLab     = "gitlab"
	ProviderGoodreads  = "goodreads"
	ProviderIMDB       = "imdb"
	ProviderAmazon     = "amazon"
	ProviderYouTube    = "youtube"
	ProviderVimeo      = "vimeo"
	ProviderSpotify    = "spotify"
	ProviderSoundCloud = "soundcloud"
	ProviderBandcamp   = "bandcamp"
	ProviderNetflix    = "netflix"
	ProviderEtsy       = "etsy"
	ProviderTwitter    = "twitter"
	ProviderInstagram  = "instagram"
	ProviderPinterest  = "pinterest"
	ProviderReddit     = "reddit"
	ProviderMedium     = "medium"
	ProviderSubstack   = "substack"
	ProviderDribbble   = "dribbble"
	ProviderBehance    = "behance"
	ProviderLetterboxd = "letterboxd"
)

// domainRule maps a registrable domain to a category and, optionally, the
// provider it implies.
type domainRule struct {
	Category string
	Provider string
}

// domainRules is the static hostname rule table. Lookup strips subdomains
// down to the registrable suffix, so "gist.github.com" matches "github.com".
// Matches here carry high confidence (> 0.9).
var domainRules = map[string]domainRule{
	"github.com":        {CategorySoftware, ProviderGitHub},
	"gitlab.com":        {CategorySoftware, ProviderGitLab},
	"bitbucket.org":     {CategorySoftware, ""},
	"sourceforge.net":   {CategorySoftware, ""},
	"stackoverflow.com": {CategorySoftware, ""},

	"goodreads.com": {CategoryBook, ProviderGoodreads},
	"audible.com":   {CategoryBook, ProviderAmazon},

	"imdb.com":           {CategoryMovie, ProviderIMDB},
	"letterboxd.com":     {CategoryMovie, ProviderLetterboxd},
	"rottentomatoes.com": {CategoryMovie, ""},
	"netflix.com":        {CategoryMovie, ProviderNetflix},

	"youtube.com": {CategoryVideo, ProviderYouTube},
	"youtu.be":    {CategoryVideo, ProviderYouTube},
	"vimeo.com":   {CategoryVideo, ProviderVimeo},
	"twitch.tv":   {CategoryVideo, ""},

	"spotify.com":     {CategoryMusic, ProviderSpotify},
	"soundcloud.com":  {CategoryMusic, ProviderSoundCloud},
	"bandcamp.com":    {CategoryMusic, ProviderBandcamp},
	"music.apple.com": {CategoryMusic, ""},

	"amazon.com":   {CategoryProduct, ProviderAmazon},
	"amazon.co.uk": {CategoryProduct, ProviderAmazon},
	"amazon.de":    {CategoryProduct, ProviderAmazon},
	"etsy.com":     {CategoryProduct, ProviderEtsy},
	"ebay.com":     {CategoryProduct, ""},

	"twitter.com":   {CategorySocial, ProviderTwitter},
	"x.com":         {CategorySocial, ProviderTwitter},
	"instagram.com": {CategorySocial, ProviderInstagram},
	"pinterest.com": {CategorySocial, ProviderPinterest},
	"reddit.com":    {CategorySocial, ProviderReddit},

	"medium.com":      {CategoryArticle, ProviderMedium},
	"substack.com":    {CategoryArticle, ProviderSubstack},
	"nytimes.com":     {CategoryArticle, ""},
	"theguardian.com": {CategoryArticle, ""},
	"wikipedia.org":   {CategoryArticle, ""},

	"dribbble.com": {CategoryDesign, ProviderDribbble},
	"behance.net":  {CategoryDesign, ProviderBehance},
	"figma.com":    {CategoryDesign, ""},

	"allrecipes.com":      {CategoryRecipe, ""},
	"seriouseats.com":     {CategoryRecipe, ""},
	"bonappetit.com":      {CategoryRecipe, ""},
	"cooking.nytimes.com": {CategoryRecipe, ""},

	"podcasts.apple.com": {CategoryPodcast, ""},
	"overcast.fm":        {CategoryPodcast, ""},
}

// pathRule is a URL-path heuristic applied when no domain rule matches.
// Path matches carry lower confidence than domain rules.
type pathRule struct {
	Fragment string
	Category string
}

// pathRules are checked in order; the first fragment contained in the URL
// path wins.
var pathRules = []pathRule{
	{"/recipes/", CategoryRecipe},
	{"/recipe/", CategoryRecipe},
	{"/cookbook/", CategoryRecipe},
	{"/podcast/", CategoryPodcast},
	{"/podcasts/", CategoryPodcast},
	{"/episode/", CategoryPodcast},
	{"/blog/", CategoryArticle},
	{"/article/", CategoryArticle},
	{"/articles/", CategoryArticle},
	{"/news/", CategoryArticle},
	{"/product/", CategoryProduct},
	{"/products/", CategoryProduct},
	{"/shop/", CategoryProduct},
	{"/store/", CategoryProduct},
	{"/watch/", CategoryVideo},
	{"/video/", CategoryVideo},
	{"/movies/", CategoryMovie},
	{"/film/", CategoryMovie},
	{"/book/", CategoryBook},
	{"/books/", CategoryBook},
	{"/album/", CategoryMusic},
	{"/track/", CategoryMusic},
	{"/playlist/", CategoryMusic},
}

// providerCategories maps a provider implied by the hostname to its default
// category, for hosts recognized as a provider without an explicit domain
// rule (e.g. a country-specific storefront of a known marketplace, or a
// streaming-audio host mapping to "music").
var providerCategories = map[string]string{
	ProviderGitHub:     CategorySoftware,
	ProviderGitLab:     CategorySoftware,
	ProviderGoodreads:  CategoryBook,
	ProviderIMDB:       CategoryMovie,
	ProviderAmazon:     CategoryProduct,
	ProviderYouTube:    CategoryVideo,
	ProviderVimeo:      CategoryVideo,
	ProviderSpotify:    CategoryMusic,
	ProviderSoundCloud: CategoryMusic,
	ProviderBandcamp:   CategoryMusic,
	ProviderNetflix:    CategoryMovie,
	ProviderEtsy:       CategoryProduct,
	ProviderTwitter:    CategorySocial,
	ProviderInstagram:  CategorySocial,
	ProviderPinterest:  CategorySocial,
	ProviderReddit:     CategorySocial,
	ProviderMedium:     CategoryArticle,
	ProviderSubstack:   CategoryArticle,
	ProviderDribbble:   CategoryDesign,
	ProviderBehance:    CategoryDesign,
	ProviderLetterboxd: CategoryMovie,
}
