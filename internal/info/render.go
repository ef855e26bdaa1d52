package info

import (
	"html/template"
	"log/slog"
	"strings"
)

// fetchedAtLayout matches the ISO-8601 UTC timestamps shown to users.
const fetchedAtLayout = "2006-01-02T15:04:05Z"

var fragments = template.Must(template.New("info").Parse(`
{{- define "result" -}}
<div class="kw-info">
  <h3>Results for <span class="keyword">{{.Keyword}}</span></h3>
  <div class="definition">
    <p>{{with .Definition}}{{if .Extract}}{{.Extract}}{{else}}No definition found.{{end}}{{else}}No definition found.{{end}}</p>
    {{- with .Definition}}{{if .URL}}
    <p><a href="{{.URL}}" target="_blank" rel="noopener">Source</a></p>
    {{- end}}{{end}}
  </div>
  {{- if .Images}}
  <h4>Images</h4>
  <div class="images">
    {{- range .Images}}
    <a href="{{or .URL "#"}}" target="_blank" rel="noopener"><img src="{{.Thumbnail}}" alt="{{or .Title $.Keyword}}" loading="lazy"/></a>
    {{- end}}
  </div>
  {{- else}}
  <p><i>No images found.</i></p>
  {{- end}}
  {{- if .News}}
  <h4>Latest News</h4>
  <ul class="news">
    {{- range .News}}
    <li><a href="{{or .URL "#"}}" target="_blank" rel="noopener">{{.Title}}</a>{{if .Published}} <span class="published">({{.Published}})</span>{{end}}</li>
    {{- end}}
  </ul>
  {{- else}}
  <p><i>No recent news.</i></p>
  {{- end}}
  <hr>
  <small>Fetched at {{.FetchedAt}}</small>
</div>
{{- end}}

{{- define "empty" -}}
<div class="kw-info kw-info-empty">
  <p class="emoji">🤔</p>
  <h3>No information found</h3>
  <p>We could not find any results for "<b>{{.}}</b>".<br>Try a more complete and specific keyword.</p>
</div>
{{- end}}

{{- define "loading" -}}
<div class="kw-info kw-info-loading">
  <p>Looking up <b>{{.}}</b>…</p>
</div>
{{- end}}

{{- define "error" -}}
<div class="kw-info kw-info-error">
  <p>Something went wrong while looking this up. Please try again.</p>
</div>
{{- end}}
`))

// view is the template model of a Result. Images without a thumbnail are
// not displayable and are left out.
type view struct {
	Keyword    string
	Definition *Definition
	Images     []Image
	News       []NewsItem
	FetchedAt  string
}

// Render returns the HTML fragment for r. Every field is escaped. When r
// carries no definition, images or news the "no information found" fragment
// is returned instead.
func Render(r Result) string {
	if r.Empty() {
		return execute("empty", r.Keyword)
	}
	v := view{
		Keyword:   r.Keyword,
		News:      r.News,
		FetchedAt: r.FetchedAt.UTC().Format(fetchedAtLayout),
	}
	if !r.Definition.Empty() {
		v.Definition = r.Definition
	}
	for _, im := range r.Images {
		if im.Thumbnail != "" {
			v.Images = append(v.Images, im)
		}
	}
	return execute("result", v)
}

// RenderLoading returns the fragment shown while keyword is being looked up.
func RenderLoading(keyword string) string {
	return execute("loading", keyword)
}

// RenderError returns the fragment shown when a lookup could not complete.
func RenderError() string {
	return execute("error", nil)
}

func execute(name string, data any) string {
	var b strings.Builder
	if err := fragments.ExecuteTemplate(&b, name, data); err != nil {
		slog.Error("info: render fragment", "template", name, "err", err)
		if name != "error" {
			return RenderError()
		}
		return ""
	}
	return b.String()
}
