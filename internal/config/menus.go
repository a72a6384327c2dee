package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/stlalpha/rgl/internal/logging"
)

// Action kinds as written in a menu document.
const (
	ActGoTo           = "goto"
	ActReturn         = "return"
	ActQuit           = "quit"
	ActRegister       = "register"
	ActLogin          = "login"
	ActChangePassword = "change_password"
	ActChangeContact  = "change_contact"
	ActFlashMessage   = "flash_message"
	ActRunGame        = "run_game"
	ActEditFile       = "edit_file"
	ActCopyFile       = "copy_file"
	ActWatch          = "watch"
)

var bareActions = map[string]bool{
	ActReturn: true, ActQuit: true, ActRegister: true, ActLogin: true,
	ActChangePassword: true, ActChangeContact: true, ActWatch: true,
}

// PathDoc is a path either taken verbatim (normal) or relative to the
// logged in user's private directory (userdir). Exactly one is set.
type PathDoc struct {
	Normal  string `json:"normal,omitempty" yaml:"normal,omitempty"`
	UserDir string `json:"userdir,omitempty" yaml:"userdir,omitempty"`
}

func (p PathDoc) validate() error {
	if (p.Normal == "") == (p.UserDir == "") {
		return errors.New("path must set exactly one of normal or userdir")
	}
	return nil
}

// CopyDoc is the argument of a copy_file action.
type CopyDoc struct {
	Src    PathDoc `json:"src" yaml:"src"`
	Dst    PathDoc `json:"dst" yaml:"dst"`
	Policy string  `json:"policy" yaml:"policy"` // overwrite_existing or ignore_existing
}

// ActionDoc is one action in its document form. Bare actions are written
// as a plain string; actions with arguments as a single-key object.
type ActionDoc struct {
	Kind   string
	Target string // goto, run_game
	Text   string // flash_message
	Path   *PathDoc
	Copy   *CopyDoc
}

func (a *ActionDoc) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		return a.setBare(bare)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("action must be a string or an object: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("action object must have exactly one key, got %d", len(obj))
	}
	var kind string
	var raw json.RawMessage
	for k, v := range obj {
		kind, raw = k, v
	}
	return a.setArg(kind, func(v any) error { return json.Unmarshal(raw, v) })
}

func (a *ActionDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return a.setBare(node.Value)
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: action mapping must have exactly one key", node.Line)
		}
		arg := node.Content[1]
		if err := a.setArg(node.Content[0].Value, arg.Decode); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		return nil
	default:
		return fmt.Errorf("line %d: action must be a string or a mapping", node.Line)
	}
}

// MarshalJSON writes the same shape UnmarshalJSON accepts.
func (a ActionDoc) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ActGoTo, ActRunGame:
		return json.Marshal(map[string]string{a.Kind: a.Target})
	case ActFlashMessage:
		return json.Marshal(map[string]string{a.Kind: a.Text})
	case ActEditFile:
		return json.Marshal(map[string]*PathDoc{a.Kind: a.Path})
	case ActCopyFile:
		return json.Marshal(map[string]*CopyDoc{a.Kind: a.Copy})
	default:
		return json.Marshal(a.Kind)
	}
}

func (a *ActionDoc) setBare(kind string) error {
	if !bareActions[kind] {
		return fmt.Errorf("unknown action %q", kind)
	}
	*a = ActionDoc{Kind: kind}
	return nil
}

func (a *ActionDoc) setArg(kind string, decode func(any) error) error {
	*a = ActionDoc{Kind: kind}
	switch kind {
	case ActGoTo, ActRunGame:
		if err := decode(&a.Target); err != nil || a.Target == "" {
			return fmt.Errorf("%s needs a non-empty id", kind)
		}
	case ActFlashMessage:
		if err := decode(&a.Text); err != nil {
			return fmt.Errorf("%s needs a string: %w", kind, err)
		}
	case ActEditFile:
		a.Path = &PathDoc{}
		if err := decode(a.Path); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		if err := a.Path.validate(); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
	case ActCopyFile:
		a.Copy = &CopyDoc{}
		if err := decode(a.Copy); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		if err := a.Copy.Src.validate(); err != nil {
			return fmt.Errorf("%s src: %w", kind, err)
		}
		if err := a.Copy.Dst.validate(); err != nil {
			return fmt.Errorf("%s dst: %w", kind, err)
		}
	default:
		if bareActions[kind] {
			return fmt.Errorf("action %q takes no argument", kind)
		}
		return fmt.Errorf("unknown action %q", kind)
	}
	return nil
}

// EntryDoc is one selectable menu line.
type EntryDoc struct {
	Key     string      `json:"key" yaml:"key"`
	Name    string      `json:"name" yaml:"name"`
	Actions []ActionDoc `json:"actions" yaml:"actions"`
}

// MenuDoc is one menu in its document form.
type MenuDoc struct {
	ID      string     `json:"id" yaml:"id"`
	Title   string     `json:"title" yaml:"title"`
	Entries []EntryDoc `json:"entries" yaml:"entries"`
}

// MenuDocument is the root of a menus file.
type MenuDocument struct {
	Menus []MenuDoc `json:"menus" yaml:"menus"`
}

// LoadMenus reads a menus file. The format is picked from the extension:
// .yaml/.yml are YAML, anything else is JSON with comments allowed. A
// missing file yields DefaultMenus.
func LoadMenus(filePath string) (MenuDocument, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warn("%s not found. Using built-in menus.", filePath)
			return DefaultMenus(), nil
		}
		return MenuDocument{}, fmt.Errorf("failed to read menus file %s: %w", filePath, err)
	}
	return ParseMenus(filePath, data)
}

// ParseMenus decodes a menus document; name is used for format detection
// and error messages.
func ParseMenus(name string, data []byte) (MenuDocument, error) {
	var doc MenuDocument
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return MenuDocument{}, fmt.Errorf("failed to parse menus YAML from %s: %w", name, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
			return MenuDocument{}, fmt.Errorf("failed to parse menus JSON from %s: %w", name, err)
		}
	}
	if len(doc.Menus) == 0 {
		return MenuDocument{}, fmt.Errorf("menus file %s defines no menus", name)
	}
	return doc, nil
}

// DefaultMenus is the stock NetHack server layout.
func DefaultMenus() MenuDocument {
	rc := CopyDoc{
		Src:    PathDoc{Normal: "rgldir/nethackrc"},
		Dst:    PathDoc{UserDir: "nethack/nethackrc"},
		Policy: "ignore_existing",
	}
	reset := rc
	reset.Policy = "overwrite_existing"

	return MenuDocument{Menus: []MenuDoc{
		{
			ID:    "mainmenu_anon",
			Title: "Main menu",
			Entries: []EntryDoc{
				{Key: "l", Name: "login", Actions: []ActionDoc{{Kind: ActLogin}}},
				{Key: "r", Name: "register", Actions: []ActionDoc{{Kind: ActRegister}}},
				{Key: "w", Name: "watch games in progress", Actions: []ActionDoc{{Kind: ActWatch}}},
				{Key: "q", Name: "quit", Actions: []ActionDoc{{Kind: ActQuit}}},
			},
		},
		{
			ID:    "mainmenu_user",
			Title: "Main menu",
			Entries: []EntryDoc{
				{Key: "c", Name: "change current password", Actions: []ActionDoc{{Kind: ActChangePassword}}},
				{Key: "e", Name: "change current contact information", Actions: []ActionDoc{{Kind: ActChangeContact}}},
				{Key: "n", Name: "NetHack 3.4.3", Actions: []ActionDoc{{Kind: ActGoTo, Target: "nethack"}}},
				{Key: "w", Name: "watch games in progress", Actions: []ActionDoc{{Kind: ActWatch}}},
				{Key: "q", Name: "quit", Actions: []ActionDoc{{Kind: ActQuit}}},
			},
		},
		{
			ID:    "nethack",
			Title: "NetHack 3.4.3",
			Entries: []EntryDoc{
				{Key: "p", Name: "play", Actions: []ActionDoc{
					{Kind: ActCopyFile, Copy: &rc},
					{Kind: ActRunGame, Target: "nethack"},
				}},
				{Key: "e", Name: "edit nethackrc", Actions: []ActionDoc{
					{Kind: ActCopyFile, Copy: &rc},
					{Kind: ActEditFile, Path: &PathDoc{UserDir: "nethack/nethackrc"}},
				}},
				{Key: "r", Name: "reset nethackrc", Actions: []ActionDoc{{Kind: ActGoTo, Target: "nethack_reset"}}},
				{Key: "q", Name: "back", Actions: []ActionDoc{{Kind: ActReturn}}},
			},
		},
		{
			ID:    "nethack_reset",
			Title: "NetHack 3.4.3 rc file reset",
			Entries: []EntryDoc{
				{Key: "R", Name: "confirm reset", Actions: []ActionDoc{
					{Kind: ActCopyFile, Copy: &reset},
					{Kind: ActFlashMessage, Text: "the nethackrc file was reset to default"},
					{Kind: ActReturn},
				}},
				{Key: "q", Name: "back", Actions: []ActionDoc{{Kind: ActReturn}}},
			},
		},
	}}
}
