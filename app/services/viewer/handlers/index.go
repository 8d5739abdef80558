package handlers

import (
	"context"
	"html/template"
	"net/http"
	"strings"
)

type index struct {
	tmpl *template.Template
	data indexData
}

type indexData struct {
	Build     string
	NodeURL   string
	EventsURL string
}

func newIndex(build string, nodeURL string) (index, error) {
	tmpl, err := template.ParseFS(assets, "assets/views/index.html")
	if err != nil {
		return index{}, err
	}

	nodeURL = strings.TrimSuffix(nodeURL, "/")
	eventsURL := "ws" + strings.TrimPrefix(nodeURL, "http") + "/v1/events"

	ig := index{
		tmpl: tmpl,
		data: indexData{
			Build:     build,
			NodeURL:   nodeURL,
			EventsURL: eventsURL,
		},
	}

	return ig, nil
}

func (ig index) handler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return ig.tmpl.Execute(w, ig.data)
}
