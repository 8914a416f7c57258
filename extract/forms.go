// CLAUDE:SUMMARY Deterministic form detection: enumerates <form> elements and their fields in document order.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Form describes one <form> of a page.
type Form struct {
	Index  int     `json:"form_index"`
	Action string  `json:"action"`
	Method string  `json:"method"`
	Fields []Field `json:"fields"`
}

// Field describes one input, textarea or select of a form.
type Field struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	ID          string   `json:"id,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Label       string   `json:"label,omitempty"`
	Required    bool     `json:"required"`
	Hidden      bool     `json:"hidden,omitempty"`
	CSRF        bool     `json:"csrf,omitempty"`
	Value       string   `json:"value,omitempty"`
	Options     []Option `json:"options,omitempty"`
}

// csrfNames are substrings of the usual anti-forgery field names.
var csrfNames = []string{"csrf", "xsrf", "authenticity_token", "requestverificationtoken", "_token", "nonce"}

// Option is one choice of a select field.
type Option struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// DetectForms lists the forms of a page in document order. Fields keep their
// order inside each form. Relative actions are resolved against pageURL when
// it parses. The output depends only on the markup and pageURL.
func DetectForms(raw, pageURL string) ([]Form, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("extract: parse HTML: %w", err)
	}
	base, _ := url.Parse(pageURL)

	labels := map[string]string{}
	doc.Find("label[for]").Each(func(_ int, l *goquery.Selection) {
		if id := l.AttrOr("for", ""); id != "" && labels[id] == "" {
			labels[id] = CleanText(l.Text())
		}
	})

	forms := []Form{}
	doc.Find("form").Each(func(i int, s *goquery.Selection) {
		f := Form{
			Index:  i,
			Action: resolveAction(base, s.AttrOr("action", "")),
			Method: formMethod(s.AttrOr("method", "")),
			Fields: []Field{},
		}
		s.Find("input, textarea, select").Each(func(j int, fs *goquery.Selection) {
			f.Fields = append(f.Fields, describeField(j, fs, labels))
		})
		forms = append(forms, f)
	})
	return forms, nil
}

func describeField(i int, s *goquery.Selection, labels map[string]string) Field {
	id := s.AttrOr("id", "")
	fd := Field{
		ID:          id,
		Placeholder: s.AttrOr("placeholder", ""),
		Name:        s.AttrOr("name", ""),
	}
	_, fd.Required = s.Attr("required")
	if fd.Name == "" {
		fd.Name = id
	}
	if fd.Name == "" {
		fd.Name = fmt.Sprintf("field_%d", i)
	}

	switch goquery.NodeName(s) {
	case "textarea":
		fd.Type = "textarea"
		fd.Value = s.Text()
	case "select":
		fd.Type = "select-one"
		if _, multi := s.Attr("multiple"); multi {
			fd.Type = "select-multiple"
		}
		fd.Options = []Option{}
		s.Find("option").Each(func(_ int, o *goquery.Selection) {
			text := CleanText(o.Text())
			opt := Option{Value: o.AttrOr("value", text), Text: text}
			fd.Options = append(fd.Options, opt)
			if _, sel := o.Attr("selected"); sel && fd.Value == "" {
				fd.Value = opt.Value
			}
		})
		if fd.Value == "" && len(fd.Options) > 0 && fd.Type == "select-one" {
			fd.Value = fd.Options[0].Value
		}
	default:
		fd.Type = strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if fd.Type == "" {
			fd.Type = "text"
		}
		fd.Value = s.AttrOr("value", "")
		fd.Hidden = fd.Type == "hidden"
	}
	fd.Label = fieldLabel(s, id, labels)
	if fd.Hidden {
		name := strings.ToLower(fd.Name)
		for _, c := range csrfNames {
			if strings.Contains(name, c) {
				fd.CSRF = true
				break
			}
		}
	}
	return fd
}

// fieldLabel returns the text of the label naming the field: a label whose
// for attribute matches its id, else an enclosing label, else aria-label.
func fieldLabel(s *goquery.Selection, id string, labels map[string]string) string {
	if l := labels[id]; id != "" && l != "" {
		return l
	}
	if wrap := s.ParentsFiltered("label").First(); wrap.Length() > 0 {
		c := wrap.Clone()
		c.Find("input, textarea, select").Remove()
		if l := CleanText(c.Text()); l != "" {
			return l
		}
	}
	return CleanText(s.AttrOr("aria-label", ""))
}

// formMethod normalises the method attribute the way browsers do.
func formMethod(m string) string {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case "post":
		return "post"
	case "dialog":
		return "dialog"
	}
	return "get"
}

func resolveAction(base *url.URL, action string) string {
	action = strings.TrimSpace(action)
	if base == nil || base.Host == "" {
		return action
	}
	ref, err := url.Parse(action)
	if err != nil {
		return action
	}
	return base.ResolveReference(ref).String()
}
