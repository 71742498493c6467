package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/google/uuid"
)

type templates struct {
	base    *template.Template
	index   *template.Template
	channel *template.Template
	result  *template.Template
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
</head><body>{{template "content" .}}</body></html>`))
	index := template.Must(template.Must(base.Clone()).New("content").Parse(`<h1>Greed</h1>
<form action="/roll" method="post" hx-post="/roll" hx-target="#result">
  <input name="nick" placeholder="nick">
  <button>Roll</button>
</form>
<div id="result"></div>`))
	channel := template.Must(template.Must(base.Clone()).New("content").Parse(`<h1>Greed in {{.Channel}}</h1>
<form hx-post="/channels/{{.Channel}}/roll" hx-target="#result" method="post">
  <input name="nick" placeholder="nick">
  <button>Roll</button>
</form>
<div id="result"></div>
<div hx-ext="sse" hx-sse="connect:/channels/{{.Channel}}/events">
  <div id="feed" hx-sse="swap:play" hx-swap="afterbegin"></div>
</div>`))
	result := template.Must(template.New("result").Parse(resultTemplate))
	return &templates{base: base, index: index, channel: channel, result: result}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
	var buf bytes.Buffer
	if name == "" {
		_ = t.Execute(&buf, data)
	} else {
		_ = t.ExecuteTemplate(&buf, name, data)
	}
	return buf.Bytes()
}

const resultTemplate = `<div class="play{{if .Rejected}} rejected{{end}}">
  {{- range .Messages}}
  <p>{{.}}</p>
  {{- end}}
</div>`

// playerID returns the nick from the form, or a per-browser id kept in a cookie.
func playerID(w http.ResponseWriter, r *http.Request) string {
	if nick := r.Form.Get("nick"); nick != "" {
		return nick
	}
	if c, err := r.Cookie("player_id"); err == nil && c.Value != "" {
		return c.Value
	}
	v := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: "player_id", Value: v, Path: "/"})
	return v
}
