package tagging

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Topic is one label of the taxonomy with the keyword stems that vote for it.
type Topic struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// SourceHint maps outlet names to a label when no topic keyword matched.
type SourceHint struct {
	Match []string `yaml:"match"`
	Label string   `yaml:"label"`
}

// Taxonomy is loaded once and shared read-only between feed workers.
type Taxonomy struct {
	Topics      []Topic      `yaml:"topics"`
	SourceHints []SourceHint `yaml:"source_hints"`
	Stopwords   []string     `yaml:"stopwords"`
}

var defaultTopics = []Topic{
	{"Politiek", []string{"politiek", "reger", "parlement", "partij", "minister", "verkiez", "coalitie", "vlaams", "kamer", "premier", "kabinet"}},
	{"Economie", []string{"economie", "inflatie", "rente", "werkloos", "banen", "ondernem", "bank", "beurs", "aandeel", "crypto", "bitcoin", "euro", "energieprijs"}},
	{"Sport", []string{"sport", "voetbal", "wieler", "tennis", "olymp", "ek", "wk", "wedstrijd", "goal", "club", "anderlecht", "ajax", "psv", "feyenoord", "genk"}},
	{"Tech", []string{"tech", "technologie", "ai", "kunstmatige", "startup", "software", "app", "google", "apple", "microsoft", "meta", "chip", "semiconductor", "smartphone", "laptop", "nvidia", "tweakers"}},
	{"Wetenschap", []string{"wetenschap", "onderzoek", "universiteit", "ruimte", "nasa", "esa", "astronom", "natuurkund", "biolog", "geneesk"}},
	{"Internationaal", []string{"eu", "europ", "navo", "nato", "rusland", "oekrai", "vs", "china", "frankrijk", "duitsland", "verenigde staten", "midden-oosten", "israel", "palestin"}},
	{"België", []string{"belgië", "belgie", "vlaanderen", "antwerpen", "gent", "brussel", "vlaming", "waals"}},
	{"Nederland", []string{"nederland", "amsterdam", "rotterdam", "den haag", "utrecht", "eindhoven", "rutte", "randstad", "nl"}},
	{"Cultuur", []string{"cultuur", "film", "muziek", "festival", "boek", "kunst", "theater", "serie"}},
	{"Weer", []string{"weer", "storm", "hitte", "koude", "temperatuur", "regen", "code geel", "code oranje", "onweer"}},
	{"Verkeer", []string{"verkeer", "spoor", "trein", "ns", "thales", "file", "bus", "tram", "metro", "wegwerkzaam"}},
}

var defaultSourceHints = []SourceHint{
	{Match: []string{"tweakers"}, Label: "Tech"},
	{Match: []string{"nos", "nu.nl"}, Label: "Nederland"},
	{Match: []string{"hln"}, Label: "België"},
}

const defaultStopwords = `
de het een en of maar want dus toch al niet wel is zijn was waren ben bent
aan op in uit van voor met zonder door naar bij om over tegen tot vanaf
deze dit die dat daar hier waar welk welke wie wat waarom hoe wanneer
je jij u hij zij ze wij we jullie hun hen ik mij me mijn jouw uw
haar ons onze hunne ze'n d'r 'n 't
ook nog meer meest minst heel zeer veel weinig soms vaak nooit altijd
er dan nu straks vandaag morgen gisteren reeds
bijv bv etc enz enzovoort
het's 's
omdat zodat terwijl hoewel indien tenzij zodra zoals
a an the to from for of as at on by into about over under above below
rt via
`

// DefaultTaxonomy returns the built-in Dutch/Flemish taxonomy.
func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{
		Topics:      defaultTopics,
		SourceHints: defaultSourceHints,
		Stopwords:   strings.Fields(defaultStopwords),
	}
}

// LoadTaxonomy reads a YAML override. Sections missing from the file keep the defaults;
// an empty path returns the defaults.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	t := DefaultTaxonomy()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	var override Taxonomy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("decode taxonomy %s: %w", path, err)
	}

	if len(override.Topics) > 0 {
		t.Topics = override.Topics
	}
	if len(override.SourceHints) > 0 {
		t.SourceHints = override.SourceHints
	}
	if len(override.Stopwords) > 0 {
		t.Stopwords = override.Stopwords
	}

	for _, topic := range t.Topics {
		if strings.TrimSpace(topic.Label) == "" {
			return nil, fmt.Errorf("taxonomy %s: topic without label", path)
		}
	}
	return t, nil
}
