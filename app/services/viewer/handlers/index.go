package handlers

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"net/http"

	"github.com/ardanlabs/ledger/foundation/web"
)

//go:embed assets/index.html
var indexHTML string

type index struct {
	page []byte
}

// newIndex renders the page once since its content never changes.
func newIndex(build string, nodeHost string) (index, error) {
	tmpl, err := template.New("index").Parse(indexHTML)
	if err != nil {
		return index{}, err
	}

	data := struct {
		Build    string
		NodeHost string
	}{
		Build:    build,
		NodeHost: nodeHost,
	}

	var b bytes.Buffer
	if err := tmpl.Execute(&b, data); err != nil {
		return index{}, err
	}

	return index{page: b.Bytes()}, nil
}

func (ig index) handler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := web.SetStatusCode(ctx, http.StatusOK); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(ig.page)

	return err
}
