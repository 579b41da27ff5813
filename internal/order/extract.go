package order

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultMenu lists the keywords that identify menu items in caller speech.
var DefaultMenu = []string{"samosa", "tikka", "masala", "naan", "curry", "biryani", "rice"}

var (
	nameRe  = regexp.MustCompile(`(?i)\b(?:my name is|my name's|name is|this is|i am|i'm|it's|called)\s+([a-z][a-z'\-]+(?:\s+[a-z][a-z'\-]+)?)`)
	phoneRe = regexp.MustCompile(`(?:^|[^\d+])(?:\+?1[-.\s]?)?\(?(\d{3})\)?[-.\s]?(\d{3})[-.\s]?(\d{4})(?:$|[^\d])`)
	wordRe  = regexp.MustCompile(`[a-z0-9']+`)
)

// notNames are words that follow "I'm" or "this is" without being a name.
var notNames = map[string]bool{
	"a": true, "an": true, "the": true, "just": true, "not": true, "so": true, "very": true,
	"calling": true, "looking": true, "going": true, "trying": true, "ordering": true,
	"wondering": true, "interested": true, "hungry": true, "ready": true, "done": true,
	"good": true, "fine": true, "great": true, "sorry": true, "here": true, "sure": true,
	"all": true, "okay": true, "ok": true, "correct": true, "right": true, "it": true,
}

// nameTails end a captured name at the first word that starts a new clause.
var nameTails = map[string]bool{
	"and": true, "phone": true, "number": true, "my": true, "i": true, "please": true,
	"from": true, "with": true, "calling": true, "here": true, "again": true, "speaking": true,
	"for": true, "to": true, "at": true, "can": true, "could": true, "would": true,
}

var quantities = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "dozen": 12,
	"another": 1, "couple": 2,
}

// fillers separate items and never form part of an item name.
var fillers = map[string]bool{
	"and": true, "or": true, "with": true, "the": true, "some": true, "of": true,
	"like": true, "want": true, "get": true, "have": true, "please": true, "also": true,
	"plus": true, "i": true, "i'd": true, "me": true, "my": true, "order": true,
	"to": true, "for": true, "is": true, "that": true, "then": true, "can": true,
	"yes": true, "no": true, "just": true, "um": true, "uh": true, "okay": true,
	"ok": true, "so": true, "need": true, "would": true, "give": true, "us": true,
	"we": true, "add": true, "try": true, "more": true, "any": true, "your": true,
}

// Extractor finds order details in caller utterances with pattern matching.
// It is the fallback path when the language model cannot call tools.
type Extractor struct {
	menu map[string]bool
}

// NewExtractor returns an Extractor for the given menu keywords, or
// DefaultMenu when none are given.
func NewExtractor(keywords []string) *Extractor {
	if len(keywords) == 0 {
		keywords = DefaultMenu
	}
	m := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			m[k] = true
		}
	}
	return &Extractor{menu: m}
}

// Extract scans each utterance and returns the details found. Later
// mentions of a name or phone number replace earlier ones.
func (e *Extractor) Extract(utterances ...string) Details {
	var d Details
	for _, u := range utterances {
		if name := findName(u); name != "" {
			d.CustomerName = name
		}
		if phone := findPhone(u); phone != "" {
			d.CustomerPhone = phone
		}
		d.Items = mergeItems(d.Items, e.findItems(u))
	}
	return d
}

func findName(text string) string {
	var name string
	for _, m := range nameRe.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[1])
		if notNames[strings.ToLower(words[0])] {
			continue
		}
		if len(words) > 1 && nameTails[strings.ToLower(words[1])] {
			words = words[:1]
		}
		name = strings.Join(words, " ")
	}
	return name
}

func findPhone(text string) string {
	m := phoneRe.FindAllStringSubmatch(text, -1)
	if len(m) == 0 {
		return ""
	}
	last := m[len(m)-1]
	return last[1] + last[2] + last[3]
}

// NormalizePhone strips everything but digits and a leading US country code.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

func (e *Extractor) keyword(w string) (string, bool) {
	if e.menu[w] {
		return w, true
	}
	for _, suffix := range []string{"es", "s"} {
		if base := strings.TrimSuffix(w, suffix); base != w && e.menu[base] {
			return base, true
		}
	}
	return "", false
}

func quantity(w string) (int, bool) {
	if q, ok := quantities[w]; ok {
		return q, true
	}
	if len(w) <= 2 {
		if q, err := strconv.Atoi(w); err == nil && q > 0 {
			return q, true
		}
	}
	return 0, false
}

type mention struct {
	item     Item
	explicit bool
}

// findItems walks the words of text. A run of menu keywords forms an item,
// extended backwards by up to two modifier words ("chicken tikka masala")
// and an optional quantity in front of them.
func (e *Extractor) findItems(text string) []mention {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	var found []mention
	for i := 0; i < len(words); i++ {
		kw, ok := e.keyword(words[i])
		if !ok {
			continue
		}
		name := []string{kw}
		end := i
		for end+1 < len(words) {
			next, ok := e.keyword(words[end+1])
			if !ok {
				break
			}
			name = append(name, next)
			end++
		}

		m := mention{item: Item{Quantity: 1}}
		var mods []string
		for j := i - 1; j >= 0 && len(mods) < 3; j-- {
			w := words[j]
			if q, ok := quantity(w); ok {
				m.item.Quantity, m.explicit = q, true
				break
			}
			if fillers[w] || len(mods) == 2 {
				break
			}
			if _, isKW := e.keyword(w); isKW {
				break
			}
			mods = append([]string{w}, mods...)
		}
		m.item.Name = strings.Join(append(mods, name...), " ")
		found = append(found, m)
		i = end
	}
	return found
}

// mergeItems appends new items. A repeated dish only changes the quantity
// already recorded when the new mention states one.
func mergeItems(have []Item, found []mention) []Item {
	for _, f := range found {
		dup := false
		for k := range have {
			if have[k].Name == f.item.Name {
				if f.explicit {
					have[k].Quantity = f.item.Quantity
				}
				dup = true
				break
			}
		}
		if !dup {
			have = append(have, f.item)
		}
	}
	return have
}
