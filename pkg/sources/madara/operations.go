package madara

import (
	"github.com/kumoreads/kumo/pkg/query"
)

// Madara themes lazy-load images inconsistently, so covers and pages are
// extracted as both src and data-src and the caller prefers the lazy
// attribute when present.

var latestOp = query.Map{
	Query: &query.Query{Or: []query.Query{
		{Selector: "div.page-item-detail"},
		{Selector: "div.manga-item"},
	}},
	Item: map[string]query.Operation{
		"title": query.Text{Query: &query.Query{Or: []query.Query{
			{Selector: ".post-title h3 a"},
			{Selector: ".post-title a"},
		}}},
		"url": query.Attr{Query: &query.Query{Or: []query.Query{
			{Selector: ".post-title h3 a"},
			{Selector: ".post-title a"},
		}}, Name: "href"},
		"cover_lazy": query.Attr{Query: query.Sel("img"), Name: "data-src", Optional: true},
		"cover":      query.Attr{Query: query.Sel("img"), Name: "src", Optional: true},
		"chapters": query.Map{
			Query: query.Sel(".chapter-item"),
			Item: map[string]query.Operation{
				"title": query.Text{Query: query.Sel(".chapter a")},
				"url":   query.Attr{Query: query.Sel(".chapter a"), Name: "href"},
				"date":  query.Text{Query: query.Sel("span.post-on")},
			},
		},
	},
}

var detailsOp = query.Object{
	Fields: map[string]query.Operation{
		"title": query.Text{Query: &query.Query{Or: []query.Query{
			{Selector: ".post-title h1"},
			{Selector: ".post-title h3"},
		}}},
		"description": query.Map{
			Query: &query.Query{Or: []query.Query{
				{Selector: ".description-summary .summary__content p"},
				{Selector: ".summary__content p"},
				{Selector: ".summary__content"},
			}},
			Item: map[string]query.Operation{
				"text": query.Text{},
			},
		},
		"cover_lazy": query.Attr{Query: query.Sel(".summary_image img"), Name: "data-src", Optional: true},
		"cover":      query.Attr{Query: query.Sel(".summary_image img"), Name: "src", Optional: true},
		"chapters": query.Map{
			Query: query.Sel("li.wp-manga-chapter"),
			Item: map[string]query.Operation{
				"title": query.Text{Query: query.Sel("a")},
				"url":   query.Attr{Query: query.Sel("a"), Name: "href"},
				"date": query.Text{Query: &query.Query{Or: []query.Query{
					{Selector: "span.chapter-release-date i"},
					{Selector: "span.chapter-release-date"},
				}}},
			},
		},
	},
}

var pagesOp = query.Map{
	Query: &query.Query{Or: []query.Query{
		{Selector: "div.reading-content img.wp-manga-chapter-img"},
		{Selector: "div.reading-content img"},
	}},
	Item: map[string]query.Operation{
		"src_lazy": query.Attr{Query: nil, Name: "data-src", Optional: true},
		"src":      query.Attr{Query: nil, Name: "src", Optional: true},
	},
}
