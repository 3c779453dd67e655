package query

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Evaluator evaluates operation trees against a parsed document. Evaluation
// is purely functional: no network, no mutation, deterministic for the same
// document and tree. Missing matches degrade to empty values so a single
// markup change never aborts a whole extraction pass.
type Evaluator struct {
	log logger.Logger
}

func NewEvaluator(log logger.Logger) *Evaluator {
	return &Evaluator{log: log}
}

// Evaluate runs op against the given context selection. The result is a
// string, bool, map[string]any, or []map[string]any depending on the
// operation kind. A nil operation is a programmer error in an adapter.
func (ev *Evaluator) Evaluate(sel *goquery.Selection, op Operation) (any, error) {
	switch o := op.(type) {
	case Text:
		return ev.evaluateText(sel, o), nil
	case Attr:
		return ev.evaluateAttr(sel, o), nil
	case Exist:
		inner, err := ev.Evaluate(sel, o.Inner)
		if err != nil {
			return nil, err
		}
		return truthy(inner), nil
	case Object:
		return ev.evaluateObject(sel, o)
	case Map:
		return ev.evaluateMap(sel, o)
	case nil:
		return nil, errors.New("nil operation")
	default:
		return nil, errors.Errorf("unhandled operation kind %q", op.kind())
	}
}

func (ev *Evaluator) evaluateText(sel *goquery.Selection, op Text) string {
	target := resolve(sel, op.Query).First()
	text := strings.TrimSpace(target.Text())
	if op.Includes != "" && !strings.Contains(text, op.Includes) {
		return ""
	}
	return text
}

func (ev *Evaluator) evaluateAttr(sel *goquery.Selection, op Attr) string {
	target := resolve(sel, op.Query).First()
	val, ok := target.Attr(op.Name)
	if !ok {
		if !op.Optional {
			ev.log.Warn("attribute not found", logger.Data{"name": op.Name, "query": selectorOf(op.Query)})
		}
		return ""
	}
	return strings.TrimSpace(val)
}

func (ev *Evaluator) evaluateObject(sel *goquery.Selection, op Object) (map[string]any, error) {
	ctx := sel
	if op.Query != nil {
		ctx = resolve(sel, op.Query).First()
	}

	record := make(map[string]any, len(op.Fields))
	for name, fieldOp := range op.Fields {
		val, err := ev.Evaluate(ctx, fieldOp)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", name)
		}
		record[name] = val
	}
	return record, nil
}

func (ev *Evaluator) evaluateMap(sel *goquery.Selection, op Map) ([]map[string]any, error) {
	matches := resolve(sel, op.Query)

	records := make([]map[string]any, 0, matches.Length())
	var evalErr error
	matches.EachWithBreak(func(_ int, item *goquery.Selection) bool {
		record := make(map[string]any, len(op.Item))
		for name, itemOp := range op.Item {
			val, err := ev.Evaluate(item, itemOp)
			if err != nil {
				evalErr = errors.Wrapf(err, "item field %q", name)
				return false
			}
			record[name] = val
		}
		records = append(records, record)
		return true
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return records, nil
}

// resolve narrows sel by q. A nil query keeps the current context. When Or
// alternatives are present, the first one that matches anything wins.
func resolve(sel *goquery.Selection, q *Query) *goquery.Selection {
	if q == nil {
		return sel
	}

	if q.Selector != "" {
		if found := sel.Find(q.Selector); found.Length() > 0 {
			return found
		}
	}
	for i := range q.Or {
		if found := resolve(sel, &q.Or[i]); found.Length() > 0 {
			return found
		}
	}
	if q.Selector != "" || len(q.Or) > 0 {
		// Nothing matched; an empty selection degrades to empty values.
		return sel.Find(q.Selector)
	}
	return sel
}

func truthy(val any) bool {
	switch v := val.(type) {
	case string:
		return v != ""
	case bool:
		return v
	case map[string]any:
		return len(v) > 0
	case []map[string]any:
		return len(v) > 0
	default:
		return val != nil
	}
}

func selectorOf(q *Query) string {
	if q == nil {
		return ""
	}
	return q.Selector
}
