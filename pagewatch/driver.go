package pagewatch

import (
	"context"
	"fmt"
)

// driver gives the fill and overlay layers access to live pages. It is the
// only place where their JS reaches a tab; everything above it works in
// terms of page IDs and XPaths.
type driver struct {
	w *Watcher
}

const fieldByXPathJS = `(xp) => {
	const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	return n && 'value' in n ? n.value : null;
}`

const setFieldByXPathJS = `(xp, v) => {
	const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!n || !('value' in n)) return false;
	n.value = v;
	return true;
}`

const notifyFieldByXPathJS = `(xp) => {
	const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!n) return false;
	n.dispatchEvent(new Event('input', { bubbles: true }));
	n.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
}`

func (d *driver) FieldValue(ctx context.Context, pageID, xpath string) (string, error) {
	p, err := d.w.pipeline(pageID)
	if err != nil {
		return "", err
	}
	res, err := p.tab.Page.Context(ctx).Eval(fieldByXPathJS, xpath)
	if err != nil {
		return "", fmt.Errorf("pagewatch: read field %s: %w", xpath, err)
	}
	if res.Value.Nil() {
		return "", fmt.Errorf("pagewatch: no field at %s", xpath)
	}
	return res.Value.Str(), nil
}

func (d *driver) SetFieldValue(ctx context.Context, pageID, xpath, value string) error {
	p, err := d.w.pipeline(pageID)
	if err != nil {
		return err
	}
	res, err := p.tab.Page.Context(ctx).Eval(setFieldByXPathJS, xpath, value)
	if err != nil {
		return fmt.Errorf("pagewatch: set field %s: %w", xpath, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("pagewatch: no field at %s", xpath)
	}
	return nil
}

func (d *driver) NotifyFieldChanged(ctx context.Context, pageID, xpath string) error {
	p, err := d.w.pipeline(pageID)
	if err != nil {
		return err
	}
	res, err := p.tab.Page.Context(ctx).Eval(notifyFieldByXPathJS, xpath)
	if err != nil {
		return fmt.Errorf("pagewatch: notify field %s: %w", xpath, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("pagewatch: no field at %s", xpath)
	}
	return nil
}

// Eval runs overlay JS in a page. Satisfies the overlay Scripter.
func (d *driver) Eval(ctx context.Context, pageID, js string) error {
	p, err := d.w.pipeline(pageID)
	if err != nil {
		return err
	}
	if _, err := p.tab.Page.Context(ctx).Eval(js); err != nil {
		return fmt.Errorf("pagewatch: eval on page %s: %w", pageID, err)
	}
	return nil
}
