package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const payloadType = "text/x-scraper-data"

var ErrNoPayload = errors.New("injected payload not found in rendered page")

// Payload is what the extraction script leaves behind in the page.
type Payload struct {
	Name         string          `json:"name"`
	Price        json.RawMessage `json:"price"` // string or number
	Availability string          `json:"availability"`
	MainText     string          `json:"mainText"`
	PricingText  string          `json:"pricingText"`
}

// PriceString unquotes Price when the page served it as a JSON string.
func (p *Payload) PriceString() string {
	if len(p.Price) == 0 || string(p.Price) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Price, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(p.Price))
}

type ScriptOptions struct {
	// SettleDelay lets late price widgets finish rendering.
	SettleDelay time.Duration
	// PricingSelector narrows PricingText to the retailer's price block.
	PricingSelector string
}

// ExtractionScript builds the script injected after navigation. It closes
// dialogs, waits, reads the first JSON-LD Product block, captures the visible
// <main> text and appends everything as a JSON script tag.
func ExtractionScript(opts ScriptOptions) string {
	selector, _ := json.Marshal(opts.PricingSelector)
	return fmt.Sprintf(extractionJS, opts.SettleDelay.Milliseconds(), selector, payloadType)
}

const extractionJS = `
(async () => {
	Array.from(document.querySelectorAll('button, [role="button"]')).forEach(btn => {
		const lbl = (btn.getAttribute('aria-label') || btn.textContent || '').toLowerCase().trim();
		if (lbl.includes('close') || lbl === 'x' || lbl === '×') {
			try { btn.click(); } catch (_) {}
		}
	});

	await new Promise(r => setTimeout(r, %d));

	const out = { name: null, price: null, availability: null, mainText: '', pricingText: '' };

	const findProduct = (d) => {
		if (!d) return null;
		if (Array.isArray(d)) {
			for (const x of d) { const p = findProduct(x); if (p) return p; }
			return null;
		}
		if (d['@graph']) return findProduct(d['@graph']);
		const t = d['@type'];
		if (t === 'Product' || (Array.isArray(t) && t.includes('Product'))) return d;
		return null;
	};

	for (const s of document.querySelectorAll('script[type="application/ld+json"]')) {
		let d;
		try { d = JSON.parse(s.textContent); } catch (_) { continue; }
		const p = findProduct(d);
		if (!p) continue;
		let offers = p.offers || {};
		if (Array.isArray(offers)) offers = offers[0] || {};
		out.name = p.name ?? null;
		out.price = offers.price ?? offers.lowPrice ?? null;
		out.availability = offers.availability ?? null;
		break;
	}

	const mainEl = document.querySelector('main');
	out.mainText = mainEl ? mainEl.innerText : document.body.innerText;

	const sel = %s;
	if (sel) {
		const pricing = document.querySelector(sel);
		if (pricing) out.pricingText = pricing.innerText;
	}

	const tag = document.createElement('script');
	tag.type = '%s';
	tag.textContent = JSON.stringify(out).replace(/</g, '\\u003c');
	document.body.appendChild(tag);
	return true;
})()
`

// DecodePayload finds the injected script tag in rendered HTML and decodes it.
func DecodePayload(html string) (*Payload, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}

	sel := doc.Find(`script[type="` + payloadType + `"]`).Last()
	if sel.Length() == 0 {
		return nil, ErrNoPayload
	}

	var p Payload
	if err := json.Unmarshal([]byte(sel.Text()), &p); err != nil {
		return nil, fmt.Errorf("decode injected payload: %w", err)
	}
	return &p, nil
}

// HasProductMarkup reports whether the page carries any JSON-LD block at all.
// Bot challenge pages never do.
func HasProductMarkup(html string) bool {
	return strings.Contains(html, "application/ld+json")
}
