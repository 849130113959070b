// Package catalogs loads the per-role item tables: what a business can
// stock, what it costs, and the price tolerance bands customers judge a
// listing against. Catalogs are content, not balance; balance knobs live
// in tuning.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

type Catalogs struct {
	Roles  map[string]RoleCatalog
	Digest string
}

type RoleCatalog struct {
	Items []ItemDef
	ByID  map[string]ItemDef
}

// Bands are the price thresholds for one item. At or below Low customers
// love the price; [FairMin,FairMax] is tolerated; above High the sale is
// lost outright.
type Bands struct {
	Low     int `yaml:"low" json:"low"`
	FairMin int `yaml:"fair_min" json:"fair_min"`
	FairMax int `yaml:"fair_max" json:"fair_max"`
	High    int `yaml:"high" json:"high"`
}

type ItemDef struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	BuyIn      int    `yaml:"buy_in" json:"buy_in"`
	UnitCost   int    `yaml:"unit_cost" json:"unit_cost"`
	StartStock int    `yaml:"start_stock" json:"start_stock"`
	Bands      Bands  `yaml:"bands" json:"bands"`
}

type fileFormat struct {
	Roles map[string]struct {
		Items []ItemDef `yaml:"items"`
	} `yaml:"roles"`
}

func Load(configDir string) (*Catalogs, error) {
	path := filepath.Join(configDir, "items.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ff fileFormat
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("items.yaml: %w", err)
	}
	if len(ff.Roles) == 0 {
		return nil, fmt.Errorf("items.yaml: no roles defined")
	}

	cats := &Catalogs{Roles: map[string]RoleCatalog{}}
	for roleKey, rc := range ff.Roles {
		out := RoleCatalog{ByID: map[string]ItemDef{}}
		for _, it := range rc.Items {
			if it.ID == "" {
				return nil, fmt.Errorf("items.yaml: role %s has an item without an id", roleKey)
			}
			if it.UnitCost <= 0 || it.BuyIn <= 0 {
				return nil, fmt.Errorf("items.yaml: item %s/%s needs positive buy_in and unit_cost", roleKey, it.ID)
			}
			if it.StartStock <= 0 {
				it.StartStock = 20
			}
			it.Bands = deriveBands(it)
			if _, dup := out.ByID[it.ID]; dup {
				return nil, fmt.Errorf("items.yaml: duplicate item id %s/%s", roleKey, it.ID)
			}
			out.Items = append(out.Items, it)
			out.ByID[it.ID] = it
		}
		cats.Roles[roleKey] = out
	}
	cats.Digest = digest(cats)
	return cats, nil
}

// deriveBands fills unset tolerance bands from the unit cost. The spread
// matches the hand-tuned store items: fair sits a couple of dollars over
// cost, outrage starts at cost+6.
func deriveBands(it ItemDef) Bands {
	b := it.Bands
	if b.Low == 0 {
		b.Low = it.UnitCost
	}
	if b.FairMin == 0 {
		b.FairMin = it.UnitCost + 1
	}
	if b.FairMax == 0 {
		b.FairMax = it.UnitCost + 3
	}
	if b.High == 0 {
		b.High = it.UnitCost + 6
	}
	return b
}

func digest(c *Catalogs) string {
	keys := make([]string, 0, len(c.Roles))
	for k := range c.Roles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		b, _ := json.Marshal(c.Roles[k].Items)
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Role returns the catalog for one role key.
func (c *Catalogs) Role(key string) (RoleCatalog, bool) {
	rc, ok := c.Roles[key]
	return rc, ok
}
