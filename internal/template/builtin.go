package template

// Builtin template seeded on startup. Users clone and edit it from the
// template editor; the seeded copy itself cannot be deleted.
const (
	BuiltinName        = "Classic"
	BuiltinDescription = "Weekly recap with per-source sections and viewing statistics"
)

const BuiltinBody = `<div style="font-family: Helvetica, Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="text-align: center;">{{.Title}}</h1>
  <p style="text-align: center; color: #666;">{{.Date.Range}}</p>

  {{if .Movies}}
  <h2>🎬 New Movies</h2>
  {{range .Movies}}
  <div style="margin-bottom: 16px;">
    {{if .PosterURL}}<img src="{{.PosterURL}}" alt="{{.Title}}" width="80" style="float: left; margin-right: 12px; border-radius: 4px;">{{end}}
    <strong>{{.Title}}{{if .Year}} ({{.Year}}){{end}}</strong>
    {{if .Overview}}<p style="color: #444;">{{.Overview | truncate 220}}</p>{{end}}
    <div style="clear: both;"></div>
  </div>
  {{end}}
  {{end}}

  {{if .Episodes}}
  <h2>📺 New Episodes</h2>
  <ul>
  {{range .Episodes}}
    <li><strong>{{.GrandparentTitle}}</strong>{{if .ParentMediaIndex}} S{{.ParentMediaIndex}}{{end}}{{if .MediaIndex}}E{{.MediaIndex}}{{end}} — {{.Title}}</li>
  {{end}}
  </ul>
  {{end}}

  {{if .Games}}
  <h2>🎮 New Games</h2>
  <ul>
  {{range .Games}}
    <li><strong>{{.Name}}</strong> ({{.Platform}})</li>
  {{end}}
  </ul>
  {{end}}

  {{if .Books}}
  <h2>📚 New Books</h2>
  <ul>
  {{range .Books}}
    <li><strong>{{.Title}}</strong>{{if .Series}} — {{.Series}}{{if .Number}} #{{.Number}}{{end}}{{end}}</li>
  {{end}}
  </ul>
  {{end}}

  {{if .Audiobooks}}
  <h2>🎧 New Audiobooks</h2>
  <ul>
  {{range .Audiobooks}}
    <li><strong>{{.Title}}</strong>{{if .Author}} by {{.Author}}{{end}}{{if .Duration}} ({{formatDuration .Duration}}){{end}}</li>
  {{end}}
  </ul>
  {{end}}

  {{if .Programs}}
  <h2>🗓 Upcoming on TV</h2>
  <ul>
  {{range .Programs}}
    <li>{{if .Start}}{{formatTime .Start}} — {{end}}<strong>{{.Title}}</strong> on {{.Channel}}</li>
  {{end}}
  </ul>
  {{end}}

  {{if .Statistics}}
  <h2>📊 This Period</h2>
  <p>
    {{.Statistics.TotalPlays}} plays by {{.Statistics.UniqueUsers}} users.
  </p>
  {{if .Statistics.TopMovies}}
  <h3>Most Watched Movies</h3>
  <ol>
  {{range .Statistics.TopMovies}}
    <li>{{.Title}} — {{.Plays}} plays</li>
  {{end}}
  </ol>
  {{end}}
  {{if .Statistics.TopShows}}
  <h3>Most Watched Shows</h3>
  <ol>
  {{range .Statistics.TopShows}}
    <li>{{.Title}} — {{.Plays}} plays</li>
  {{end}}
  </ol>
  {{end}}
  {{end}}

  <hr style="border: none; border-top: 1px solid #ddd; margin-top: 24px;">
  <p style="text-align: center; color: #999; font-size: 12px;">
    {{.TotalItems}} new items this period
  </p>
</div>`
