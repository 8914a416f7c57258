package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// FillRequest names one form of a page and the values to put in it.
type FillRequest struct {
	URL       string
	FormIndex int
	// Values maps a field name (or id, or placeholder text) to its value.
	// Checkboxes take "true"/"false", radios and selects the option value
	// or visible text.
	Values map[string]string
	Submit bool
}

// FillReport is what happened in the page.
type FillReport struct {
	// URL is the page address after submission, or the form page.
	URL       string   `json:"url"`
	Filled    []string `json:"filled"`
	Missing   []string `json:"missing,omitempty"`
	Submitted bool     `json:"submitted"`
}

// FormFiller fills forms in a live page.
type FormFiller interface {
	FillForm(ctx context.Context, req FillRequest) (*FillReport, error)
}

// ErrFormNotFound is returned when the page has no form at the index.
var ErrFormNotFound = errors.New("fetcher: form not found")

// Validate checks a fill request before any browser starts.
func (r FillRequest) Validate() error {
	if _, err := ValidateURL(MethodAutomated, r.URL); err != nil {
		return err
	}
	if r.FormIndex < 0 {
		return fatal(MethodAutomated, "negative form index", nil)
	}
	if len(r.Values) == 0 && !r.Submit {
		return fatal(MethodAutomated, "nothing to fill or submit", nil)
	}
	return nil
}

// locateScript finds each named field of the form, sets the ones that need
// no typing (selects, checkboxes, radios) and marks text fields with a
// data attribute so they can be typed into. It returns JSON
// {"found":bool, "typed":{name:mark}, "set":[names], "missing":[names]}.
const locateScript = `(idx, values) => {
	const form = document.forms[idx];
	if (!form) return JSON.stringify({found: false});
	const out = {found: true, typed: {}, set: [], missing: []};
	const esc = (s) => CSS.escape(String(s));
	const fire = (el) => {
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
	};
	let mark = 0;
	for (const [name, value] of Object.entries(values)) {
		let el = form.querySelector('[name="' + esc(name) + '"]') || form.querySelector('#' + esc(name));
		if (!el) {
			const needle = name.toLowerCase();
			el = Array.from(form.querySelectorAll('input[placeholder], textarea[placeholder]'))
				.find((c) => c.placeholder.toLowerCase().includes(needle)) || null;
		}
		if (!el) { out.missing.push(name); continue; }
		const type = (el.type || '').toLowerCase();
		if (type === 'checkbox') {
			el.checked = !['', 'false', '0', 'off', 'no'].includes(String(value).toLowerCase());
			fire(el); out.set.push(name);
		} else if (type === 'radio') {
			const r = form.querySelector('input[type="radio"][name="' + esc(el.name) + '"][value="' + esc(value) + '"]');
			if (!r) { out.missing.push(name); continue; }
			r.checked = true; fire(r); out.set.push(name);
		} else if (el.tagName === 'SELECT') {
			const opt = Array.from(el.options).find((o) => o.value === value || o.text.trim() === value);
			if (!opt) { out.missing.push(name); continue; }
			el.value = opt.value; fire(el); out.set.push(name);
		} else if (type === 'hidden') {
			el.value = value; out.set.push(name);
		} else {
			el.setAttribute('data-scrapeall-fill', String(mark));
			out.typed[name] = String(mark++);
		}
	}
	return JSON.stringify(out);
}`

const submitScript = `(idx) => {
	const form = document.forms[idx];
	const btn = form.querySelector('button[type="submit"], input[type="submit"], button:not([type])');
	if (btn) { btn.click(); return; }
	if (form.requestSubmit) form.requestSubmit(); else form.submit();
}`

type located struct {
	Found   bool              `json:"found"`
	Typed   map[string]string `json:"typed"`
	Set     []string          `json:"set"`
	Missing []string          `json:"missing"`
}

// FillForm opens req.URL in a stealth session, fills the form at
// req.FormIndex and optionally submits it. Text fields are typed into so
// that the page's own input handlers run.
func (a *Automated) FillForm(ctx context.Context, req FillRequest) (*FillReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cfg := a.b.cfg
	settle := cfg.Settle
	if settle <= 0 {
		settle = 2 * time.Second
	}

	s, page, err := a.open(ctx, req.URL, settle)
	if err != nil {
		return nil, classifyBrowserError(ctx, MethodAutomated, err)
	}
	defer s.Close()

	values := req.Values
	if values == nil {
		values = map[string]string{}
	}
	res, err := page.Eval(locateScript, req.FormIndex, values)
	if err != nil {
		return nil, classifyBrowserError(ctx, MethodAutomated, err)
	}
	var loc located
	if err := json.Unmarshal([]byte(res.Value.Str()), &loc); err != nil {
		return nil, fmt.Errorf("fetcher: decode form fields: %w", err)
	}
	if !loc.Found {
		return nil, fmt.Errorf("%w: index %d on %s", ErrFormNotFound, req.FormIndex, req.URL)
	}

	report := &FillReport{URL: req.URL, Filled: loc.Set, Missing: loc.Missing}
	for _, name := range byMark(loc.Typed) {
		el, err := page.Element(`[data-scrapeall-fill="` + loc.Typed[name] + `"]`)
		if err == nil {
			if err = el.SelectAllText(); err == nil {
				err = el.Input(values[name])
			}
		}
		if err != nil {
			cfg.Logger.Debug("fetcher: field not typed", "field", name, "error", err)
			report.Missing = append(report.Missing, name)
			continue
		}
		report.Filled = append(report.Filled, name)
	}
	sort.Strings(report.Filled)
	sort.Strings(report.Missing)

	if req.Submit {
		waitCtx, cancel := context.WithTimeout(ctx, cfg.IdleWait)
		wait := page.Context(waitCtx).WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
		_, err := page.Eval(submitScript, req.FormIndex)
		if err == nil {
			wait()
		}
		cancel()
		if err != nil {
			return nil, classifyBrowserError(ctx, MethodAutomated, err)
		}
		report.Submitted = true
		if err := sleep(ctx, settle); err != nil {
			return nil, classifyBrowserError(ctx, MethodAutomated, err)
		}
	}

	if info, err := page.Info(); err == nil && info.URL != "" {
		report.URL = info.URL
	}
	cfg.Logger.Debug("fetcher: form filled",
		"url", req.URL, "form", req.FormIndex, "filled", len(report.Filled),
		"missing", len(report.Missing), "submitted", report.Submitted)
	return report, nil
}

// byMark returns the typed field names in the order they were marked.
func byMark(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(m[keys[i]])
		b, _ := strconv.Atoi(m[keys[j]])
		return a < b
	})
	return keys
}
