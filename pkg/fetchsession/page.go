package fetchsession

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kumoreads/kumo/pkg/query"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Page is a fetched document: the raw HTML plus a parsed tree that operation
// trees can be evaluated against.
type Page struct {
	url        string
	statusCode int
	html       string
	doc        *goquery.Document
	evaluator  *query.Evaluator
}

func newPage(url, html string, statusCode int, log logger.Logger) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page")
	}

	return &Page{
		url:        url,
		statusCode: statusCode,
		html:       html,
		doc:        doc,
		evaluator:  query.NewEvaluator(log),
	}, nil
}

// Evaluate runs an operation tree against the parsed document.
func (p *Page) Evaluate(op query.Operation) (any, error) {
	return p.evaluator.Evaluate(p.doc.Selection, op)
}

// HTML returns the raw response body.
func (p *Page) HTML() string {
	return p.html
}

func (p *Page) URL() string {
	return p.url
}

func (p *Page) StatusCode() int {
	return p.statusCode
}
