package reconcile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"gamecatalog/internal/models"
)

// CuratedList is the allow-list of titles eligible for synthetic pricing.
// It is built once from configuration and shared by every caller.
type CuratedList struct {
	keys map[string]string
}

func NewCuratedList(titles ...[]string) *CuratedList {
	c := &CuratedList{keys: map[string]string{}}
	for _, group := range titles {
		for _, title := range group {
			key := models.NormalizedKey(title)
			if key == "" {
				continue
			}
			c.keys[key] = strings.TrimSpace(title)
		}
	}
	return c
}

func (c *CuratedList) Contains(title string) bool {
	if c == nil || len(c.keys) == 0 {
		return false
	}
	_, ok := c.keys[models.NormalizedKey(title)]
	return ok
}

func (c *CuratedList) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

func (c *CuratedList) Titles() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.keys))
	for _, title := range c.keys {
		out = append(out, title)
	}
	sort.Strings(out)
	return out
}

type curatedFile struct {
	Titles []string `yaml:"titles"`
}

// LoadCuratedFile reads a YAML file holding either `titles: [...]` or a bare
// list of titles. A missing file yields an empty list.
func LoadCuratedFile(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading curated list: %w", err)
	}
	return parseCurated(data)
}

func parseCurated(data []byte) ([]string, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var doc curatedFile
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Titles) > 0 {
		return doc.Titles, nil
	}
	var list []string
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing curated list YAML: %w", err)
	}
	return list, nil
}
