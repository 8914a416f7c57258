package scrape

import (
	"fmt"
	"strings"
)

// Hint is one probable cause of a failed scrape.
type Hint struct {
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion"`
}

// Report explains a failed scrape to the user.
type Report struct {
	URL      string   `json:"url"`
	Attempts []string `json:"attempts"`
	Hints    []Hint   `json:"hints"`
}

// hintRules are checked in order; the first match wins.
var hintRules = []struct {
	needles []string
	hint    Hint
}{
	{[]string{"403", "forbidden"}, Hint{"Website is blocking automated access (403 Forbidden)", "The site may require authentication or has anti-bot protection"}},
	{[]string{"404"}, Hint{"Page not found (404)", "Check if the URL is correct"}},
	{[]string{"timed out", "timeout"}, Hint{"Connection timeout", "The website may be slow or temporarily unavailable"}},
	{[]string{"captcha", "challenge"}, Hint{"CAPTCHA or bot challenge detected", "This site requires human verification"}},
	{[]string{"dns"}, Hint{"Host name does not resolve", "Check the domain name for typos"}},
	{[]string{"malformed url"}, Hint{"The URL is not valid", "Use an absolute http:// or https:// address"}},
	{[]string{"connection"}, Hint{"Connection error", "Check your internet connection or the website may be down"}},
	{[]string{"tls", "ssl", "certificate", "x509"}, Hint{"SSL/Certificate error", "The website may have an invalid SSL certificate"}},
}

var fallbackHint = Hint{"Unknown error", "The website may have special protection or require login"}

// Report builds the error report. It returns nil for a successful outcome.
func (o *Outcome) Report() *Report {
	if o.Succeeded() {
		return nil
	}
	r := &Report{URL: o.URL}
	for _, a := range o.Attempts {
		if a.Err != nil {
			r.Attempts = append(r.Attempts, fmt.Sprintf("%s (try %d): %v", a.Step, a.Try, a.Err))
		}
	}
	if len(r.Attempts) == 0 && o.Err != nil {
		r.Attempts = append(r.Attempts, o.Err.Error())
	}

	text := strings.ToLower(strings.Join(r.Attempts, " "))
	for _, rule := range hintRules {
		for _, n := range rule.needles {
			if strings.Contains(text, n) {
				r.Hints = append(r.Hints, rule.hint)
				return r
			}
		}
	}
	r.Hints = append(r.Hints, fallbackHint)
	return r
}

// String renders the report as plain text.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unable to scrape %s\n\nAttempted methods:\n", r.URL)
	for i, a := range r.Attempts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a)
	}
	b.WriteString("\nPossible reasons:\n")
	for _, h := range r.Hints {
		fmt.Fprintf(&b, "- %s\n- Suggestion: %s\n", h.Reason, h.Suggestion)
	}
	b.WriteString("\nWhat you can try:\n")
	b.WriteString("- Check if the website requires login\n")
	b.WriteString("- Verify the URL is accessible in a browser\n")
	b.WriteString("- Try again later if the site is temporarily down\n")
	return b.String()
}

// Message is the one-line user-facing error of a failed outcome.
func (o *Outcome) Message() string {
	if o.Succeeded() || o.Err == nil {
		return ""
	}
	if o.Fatal {
		return fmt.Sprintf("scrape of %s failed: %v", o.URL, o.Err)
	}
	return fmt.Sprintf("all fetch strategies failed for %s; last error: %v", o.URL, o.Err)
}
