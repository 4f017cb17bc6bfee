// ABOUTME: Exports a board snapshot as a structured YAML document.
// ABOUTME: Uses gopkg.in/yaml.v3 for serialization with deterministic lane ordering.
package export

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/kanbansync/board/core"
)

// YamlItem is a checklist entry.
type YamlItem struct {
	Text      string `yaml:"text"`
	Completed bool   `yaml:"completed"`
}

// YamlCard is a serializable YAML representation of a single card.
type YamlCard struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	ProjectID   string     `yaml:"project_id,omitempty"`
	Labels      []string   `yaml:"labels,omitempty"`
	Members     []string   `yaml:"members,omitempty"`
	Items       []YamlItem `yaml:"items,omitempty"`
	Comments    int        `yaml:"comments,omitempty"`
	Attachments int        `yaml:"attachments,omitempty"`
}

// YamlLane is a lane with its cards.
type YamlLane struct {
	Name      string     `yaml:"name"`
	Finalized bool       `yaml:"finalized,omitempty"`
	Cards     []YamlCard `yaml:"cards"`
}

// YamlBoard is the top-level document.
type YamlBoard struct {
	Name    string     `yaml:"name"`
	Version string     `yaml:"version"`
	Lanes   []YamlLane `yaml:"lanes"`
}

// ExportYAML renders the snapshot as YAML.
func ExportYAML(name string, snap core.Snapshot) (string, error) {
	lanes := orderedLanes(snap)
	doc := YamlBoard{Name: name, Version: "1", Lanes: make([]YamlLane, 0, len(lanes))}

	for _, l := range lanes {
		yl := YamlLane{Name: l.Name, Finalized: l.Finalized, Cards: make([]YamlCard, 0, len(l.Cards))}
		for _, c := range l.Cards {
			yc := YamlCard{
				ID:          c.ID,
				Name:        c.Name,
				ProjectID:   c.ProjectID,
				Comments:    len(c.Comments),
				Attachments: len(c.Attachments),
			}
			if len(c.Labels) > 0 {
				yc.Labels = c.Labels
			}
			for _, m := range c.Members {
				yc.Members = append(yc.Members, m.Name)
			}
			for _, p := range c.PendingItems {
				yc.Items = append(yc.Items, YamlItem{Text: p.Text, Completed: p.Completed})
			}
			yl.Cards = append(yl.Cards, yc)
		}
		doc.Lanes = append(doc.Lanes, yl)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("yaml marshal: %w", err)
	}
	return string(data), nil
}
