package tpladapter

import (
	"bytes"
	"fmt"
	"html/template"
	"os"

	_ "embed"
)

//go:embed page.html
var defaultTemplate string

// Page is the data the page template is executed with.
type Page struct {
	Title string
	// Refresh is the reload interval in seconds, zero disables it.
	Refresh int
	// Body is trusted HTML produced by the report renderer.
	Body template.HTML
}

type tplAdapter struct {
	tpl *template.Template
}

// NewTplAdapter parses templateFileName, or the built-in page when it is empty.
func NewTplAdapter(templateFileName string) (*tplAdapter, error) {
	src := defaultTemplate
	if templateFileName != "" {
		data, err := os.ReadFile(templateFileName)
		if err != nil {
			return nil, fmt.Errorf("cannot read template: %w", err)
		}

		src = string(data)
	}

	tpl, err := template.New("page").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("cannot parse template: %w", err)
	}

	return &tplAdapter{tpl: tpl}, nil
}

func (a *tplAdapter) Render(page *Page) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := a.tpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("cannot execute template: %w", err)
	}

	return buf.Bytes(), nil
}
