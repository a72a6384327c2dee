package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const yamlMenus = `
menus:
  - id: nethack
    title: NetHack 3.4.3
    entries:
      - key: p
        name: play
        actions:
          - copy_file:
              src: {normal: rgldir/nethackrc}
              dst: {userdir: nethack/nethackrc}
              policy: ignore_existing
          - run_game: nethack
      - key: q
        name: back
        actions: [return]
`

func TestParseMenus_YAML(t *testing.T) {
	doc, err := ParseMenus("menus.yaml", []byte(yamlMenus))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Menus) != 1 || len(doc.Menus[0].Entries) != 2 {
		t.Fatalf("unexpected document shape: %+v", doc)
	}
	play := doc.Menus[0].Entries[0].Actions
	if len(play) != 2 {
		t.Fatalf("expected 2 actions on play, got %d", len(play))
	}
	if play[0].Kind != ActCopyFile || play[0].Copy.Dst.UserDir != "nethack/nethackrc" || play[0].Copy.Policy != "ignore_existing" {
		t.Errorf("copy_file decoded wrong: %+v", play[0].Copy)
	}
	if play[1].Kind != ActRunGame || play[1].Target != "nethack" {
		t.Errorf("run_game decoded wrong: %+v", play[1])
	}
	if doc.Menus[0].Entries[1].Actions[0].Kind != ActReturn {
		t.Errorf("expected bare return, got %+v", doc.Menus[0].Entries[1].Actions[0])
	}
}

func TestParseMenus_JSONCWithComments(t *testing.T) {
	data := []byte(`{
		// the only menu
		"menus": [{
			"id": "main", "title": "Main",
			"entries": [
				{"key": "f", "name": "flash", "actions": [{"flash_message": "hi"}, "quit"]},
			],
		}],
	}`)
	doc, err := ParseMenus("menus.jsonc", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acts := doc.Menus[0].Entries[0].Actions
	if acts[0].Kind != ActFlashMessage || acts[0].Text != "hi" || acts[1].Kind != ActQuit {
		t.Errorf("unexpected actions: %+v", acts)
	}
}

func TestParseMenus_UnknownAction(t *testing.T) {
	data := []byte(`{"menus": [{"id": "m", "title": "M", "entries": [{"key": "x", "name": "x", "actions": ["dance"]}]}]}`)
	if _, err := ParseMenus("menus.json", data); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestParseMenus_PathNeedsExactlyOneKind(t *testing.T) {
	data := []byte(`
menus:
  - id: m
    title: M
    entries:
      - key: e
        name: edit
        actions:
          - edit_file: {normal: a, userdir: b}
`)
	if _, err := ParseMenus("menus.yml", data); err == nil {
		t.Error("expected error for path with both normal and userdir")
	}
}

func TestParseMenus_BareActionWithArgument(t *testing.T) {
	data := []byte(`{"menus": [{"id": "m", "title": "M", "entries": [{"key": "q", "name": "q", "actions": [{"quit": "now"}]}]}]}`)
	if _, err := ParseMenus("menus.json", data); err == nil {
		t.Error("expected error for argument on bare action")
	}
}

func TestLoadMenus_MissingFileUsesDefaults(t *testing.T) {
	doc, err := LoadMenus(filepath.Join(t.TempDir(), "menus.jsonc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := make(map[string]bool)
	for _, m := range doc.Menus {
		ids[m.ID] = true
	}
	for _, want := range []string{"mainmenu_anon", "mainmenu_user", "nethack", "nethack_reset"} {
		if !ids[want] {
			t.Errorf("default menus missing %s", want)
		}
	}
}

func TestDefaultMenus_SurvivesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menus.json")
	data, err := json.Marshal(DefaultMenus())
	if err != nil {
		t.Fatalf("marshal default menus: %v", err)
	}
	os.WriteFile(path, data, 0644)

	doc, err := LoadMenus(path)
	if err != nil {
		t.Fatalf("unexpected error loading written defaults: %v", err)
	}
	reset := doc.Menus[3].Entries[0].Actions
	if reset[0].Copy.Policy != "overwrite_existing" || reset[1].Text != "the nethackrc file was reset to default" {
		t.Errorf("reset entry decoded wrong: %+v", reset)
	}
}
