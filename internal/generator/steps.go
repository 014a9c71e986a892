package generator

// Pipeline step identifiers. Order here is execution order.
const (
	StepFetchTautulli       = "fetch_tautulli"
	StepEnrichTMDB          = "enrich_tmdb"
	StepFetchRomm           = "fetch_romm"
	StepFetchKomga          = "fetch_komga"
	StepFetchAudiobookshelf = "fetch_audiobookshelf"
	StepFetchTunarr         = "fetch_tunarr"
	StepFetchStatistics     = "fetch_statistics"
	StepRenderTemplate      = "render_template"
	StepPublishGhost        = "publish_ghost"
)

type stepDef struct {
	id     string
	name   string
	weight int
}

// generationSteps is the full step catalog with progress weights. A run
// only carries the enabled subset, but weights always come from here.
var generationSteps = []stepDef{
	{StepFetchTautulli, "Fetching media from Tautulli", 15},
	{StepEnrichTMDB, "Enriching with TMDB metadata", 20},
	{StepFetchRomm, "Fetching games from ROMM", 10},
	{StepFetchKomga, "Fetching books from Komga", 10},
	{StepFetchAudiobookshelf, "Fetching audiobooks", 10},
	{StepFetchTunarr, "Fetching TV programming", 10},
	{StepFetchStatistics, "Fetching statistics", 10},
	{StepRenderTemplate, "Rendering template", 10},
	{StepPublishGhost, "Publishing to Ghost", 5},
}

func stepWeight(stepID string) int {
	for _, s := range generationSteps {
		if s.id == stepID {
			return s.weight
		}
	}
	return 0
}
