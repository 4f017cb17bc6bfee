// ABOUTME: Tests for YAML, Markdown, and HTML board exports.
// ABOUTME: Checks lane ordering, card details, escaping, and the exports directory writer.
package export_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/export"
)

func sampleSnapshot() core.Snapshot {
	state := core.NewBoardState([]string{"Todo", "Doing"}, core.DefaultReservedLanes())

	a := core.NewCard("Write <docs>", "proj-7")
	a.Labels = []string{"docs"}
	a.Members = []core.User{{ID: "u1", Name: "Ana"}}
	a.PendingItems = []core.PendingItem{
		{ID: "p1", Text: "outline", Completed: true},
		{ID: "p2", Text: "draft", Completed: false},
	}
	b := core.NewCard("Ship it", "")
	done := core.NewCard("Kickoff", "")

	state.Active.Columns["Todo"] = []core.Card{a}
	state.Active.Columns["Doing"] = []core.Card{b}
	state.Finalized.Columns[core.LaneCompleted] = []core.Card{done}
	state.Active.Normalize()
	state.Finalized.Normalize()
	return state.Snapshot()
}

func TestExportYAMLLaneOrderAndCards(t *testing.T) {
	out, err := export.ExportYAML("team", sampleSnapshot())
	if err != nil {
		t.Fatalf("ExportYAML: %v", err)
	}

	var doc export.YamlBoard
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if doc.Name != "team" {
		t.Errorf("Name = %q", doc.Name)
	}
	var names []string
	for _, l := range doc.Lanes {
		names = append(names, l.Name)
	}
	want := []string{"Todo", "Doing", core.LaneCompleted, core.LaneCancelled}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("lanes = %v, want %v", names, want)
	}
	if !doc.Lanes[2].Finalized || doc.Lanes[0].Finalized {
		t.Error("finalized flag not set on reserved lanes only")
	}

	card := doc.Lanes[0].Cards[0]
	if card.Name != "Write <docs>" || card.ProjectID != "proj-7" {
		t.Errorf("card = %+v", card)
	}
	if len(card.Items) != 2 || !card.Items[0].Completed {
		t.Errorf("items = %+v", card.Items)
	}
	if len(card.Members) != 1 || card.Members[0] != "Ana" {
		t.Errorf("members = %v", card.Members)
	}
	if doc.Lanes[3].Cards == nil {
		t.Error("empty lane should export an empty card list")
	}
}

func TestExportMarkdown(t *testing.T) {
	md := export.ExportMarkdown("team", sampleSnapshot())

	for _, want := range []string{
		"# team\n",
		"## Todo (1)",
		"- **Write &lt;docs&gt;** `proj-7` #docs (1/2)",
		"  - Members: Ana",
		"  - [x] outline",
		"  - [ ] draft",
		"## " + core.LaneCancelled + " (0)",
		"_No cards._",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if strings.Index(md, "## Doing") > strings.Index(md, "---") {
		t.Error("active lanes should come before the finalized separator")
	}
}

func TestExportMarkdownStrayLanesAppendedAlphabetically(t *testing.T) {
	snap := core.Snapshot{
		Columns: core.BoardMap{"B": {}, "Zeta": {}, "Alpha": {}},
		Order:   []string{"B"},
	}
	md := export.ExportMarkdown("x", snap)
	b, a, z := strings.Index(md, "## B "), strings.Index(md, "## Alpha"), strings.Index(md, "## Zeta")
	if !(b < a && a < z) {
		t.Errorf("unexpected lane order:\n%s", md)
	}
}

func TestExportHTML(t *testing.T) {
	out, err := export.ExportHTML("team <1>", sampleSnapshot())
	if err != nil {
		t.Fatalf("ExportHTML: %v", err)
	}
	if !strings.Contains(out, "<title>team &lt;1&gt;</title>") {
		t.Error("title not escaped")
	}
	if !strings.Contains(out, "<h2>Todo (1)</h2>") {
		t.Errorf("missing lane heading:\n%s", out)
	}
	if strings.Contains(out, "<docs>") {
		t.Error("raw card text leaked into HTML")
	}
	if !strings.Contains(out, `type="checkbox"`) {
		t.Error("task list items should render as checkboxes")
	}
}

func TestWriteExports(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	if err := export.WriteExports(dir, "team", sampleSnapshot()); err != nil {
		t.Fatalf("WriteExports: %v", err)
	}
	for _, name := range []string{"board.yaml", "board.md", "board.html"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}
