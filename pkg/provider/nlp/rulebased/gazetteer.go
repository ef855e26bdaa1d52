package rulebased

import (
	"sort"
	"strings"

	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

// Entry is a known named entity. Aliases are matched like Name.
type Entry struct {
	Name    string
	Label   string
	Aliases []string
}

type gazEntry struct {
	words []string
	label string
}

// gazetteer indexes multi-word names by their lower-cased first word.
type gazetteer struct {
	byFirst map[string][]gazEntry
}

func newGazetteer() *gazetteer {
	return &gazetteer{byFirst: make(map[string][]gazEntry)}
}

func (g *gazetteer) add(e Entry) {
	for _, name := range append([]string{e.Name}, e.Aliases...) {
		words := make([]string, 0, 4)
		for _, t := range tokenize(name) {
			if !t.IsPunct {
				words = append(words, strings.ToLower(t.Text))
			}
		}
		if len(words) == 0 {
			continue
		}
		first := words[0]
		list := append(g.byFirst[first], gazEntry{words: words, label: e.Label})
		sort.SliceStable(list, func(i, j int) bool { return len(list[i].words) > len(list[j].words) })
		g.byFirst[first] = list
	}
}

// match returns the longest entry starting at token i. Punctuation inside
// the token range is skipped so "Washington, D.C." style names still match
// on their words.
func (g *gazetteer) match(toks []nlp.Token, i int) (end int, label string, ok bool) {
	cands := g.byFirst[strings.ToLower(toks[i].Text)]
	for _, c := range cands {
		j, k := i, 0
		for j < len(toks) && k < len(c.words) {
			if toks[j].IsPunct && k > 0 {
				j++
				continue
			}
			if strings.ToLower(toks[j].Text) != c.words[k] {
				break
			}
			j++
			k++
		}
		if k == len(c.words) {
			return j, c.label, true
		}
	}
	return 0, "", false
}

// builtinEntries is a small seed of frequently mentioned places and
// organisations. Deployments extend it through entity files.
var builtinEntries = []Entry{
	{Name: "United States", Label: "GPE", Aliases: []string{"USA", "U.S.", "America"}},
	{Name: "United Kingdom", Label: "GPE", Aliases: []string{"UK", "Britain"}},
	{Name: "European Union", Label: "ORG", Aliases: []string{"EU"}},
	{Name: "United Nations", Label: "ORG", Aliases: []string{"UN"}},
	{Name: "Vietnam", Label: "GPE", Aliases: []string{"Viet Nam"}},
	{Name: "China", Label: "GPE"}, {Name: "Japan", Label: "GPE"}, {Name: "Korea", Label: "GPE"},
	{Name: "India", Label: "GPE"}, {Name: "Germany", Label: "GPE"}, {Name: "France", Label: "GPE"},
	{Name: "Canada", Label: "GPE"}, {Name: "Mexico", Label: "GPE"}, {Name: "Brazil", Label: "GPE"},
	{Name: "Russia", Label: "GPE"}, {Name: "Ukraine", Label: "GPE"}, {Name: "Australia", Label: "GPE"},
	{Name: "California", Label: "GPE"}, {Name: "Texas", Label: "GPE"}, {Name: "Florida", Label: "GPE"},
	{Name: "New York", Label: "GPE"}, {Name: "London", Label: "GPE"}, {Name: "Paris", Label: "GPE"},
	{Name: "Tokyo", Label: "GPE"}, {Name: "Berlin", Label: "GPE"}, {Name: "Hanoi", Label: "GPE", Aliases: []string{"Ha Noi"}},
	{Name: "Ho Chi Minh City", Label: "GPE", Aliases: []string{"Saigon"}},
	{Name: "Silicon Valley", Label: "LOC"}, {Name: "Europe", Label: "LOC"}, {Name: "Asia", Label: "LOC"},
	{Name: "Africa", Label: "LOC"}, {Name: "Pacific Ocean", Label: "LOC"},
	{Name: "Apple", Label: "ORG"}, {Name: "Google", Label: "ORG"}, {Name: "Microsoft", Label: "ORG"},
	{Name: "Amazon", Label: "ORG"}, {Name: "Meta", Label: "ORG"}, {Name: "Tesla", Label: "ORG"},
	{Name: "Nvidia", Label: "ORG"}, {Name: "OpenAI", Label: "ORG"}, {Name: "Netflix", Label: "ORG"},
	{Name: "Samsung", Label: "ORG"}, {Name: "NASA", Label: "ORG"}, {Name: "Reuters", Label: "ORG"},
	{Name: "iPhone", Label: "PRODUCT"}, {Name: "Android", Label: "PRODUCT"}, {Name: "Windows", Label: "PRODUCT"},
	{Name: "ChatGPT", Label: "PRODUCT"}, {Name: "YouTube", Label: "PRODUCT"},
	{Name: "Olympics", Label: "EVENT", Aliases: []string{"Olympic Games"}},
	{Name: "World Cup", Label: "EVENT"},
}

// Titles that mark a following proper-noun run as a person.
var personTitles = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "professor": {},
	"president": {}, "senator": {}, "minister": {}, "sir": {}, "madam": {},
}

// Trailing words that mark a proper-noun run as an organisation, place or
// facility.
var runSuffixLabels = map[string]string{
	"inc": "ORG", "corp": "ORG", "corporation": "ORG", "company": "ORG", "ltd": "ORG",
	"llc": "ORG", "university": "ORG", "institute": "ORG", "foundation": "ORG",
	"bank": "ORG", "group": "ORG", "agency": "ORG", "association": "ORG",
	"city": "GPE", "county": "GPE", "province": "GPE", "state": "GPE",
	"river": "LOC", "mountain": "LOC", "mountains": "LOC", "lake": "LOC", "island": "LOC",
	"street": "FAC", "bridge": "FAC", "airport": "FAC", "stadium": "FAC", "tower": "FAC",
	"festival": "EVENT", "summit": "EVENT", "conference": "EVENT",
}
