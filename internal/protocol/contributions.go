package protocol

// Contributions are the declarative UI extension points of an extension.
type Contributions struct {
	Actions []ActionContribution  `json:"actions,omitempty" yaml:"actions,omitempty"`
	Menus   map[MenuID][]MenuItem `json:"menus,omitempty" yaml:"menus,omitempty"`
}

// ActionContribution describes a command invocation presented to the user.
type ActionContribution struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	Command     string `json:"command" yaml:"command" validate:"required"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	IconURL     string `json:"iconURL,omitempty" yaml:"iconURL,omitempty"`
	When        string `json:"when,omitempty" yaml:"when,omitempty"`
	Arguments   []any  `json:"commandArguments,omitempty" yaml:"commandArguments,omitempty"`
}

// MenuID names a place where menu items appear.
type MenuID string

const (
	MenuCommandPalette MenuID = "commandPalette"
	MenuEditorTitle    MenuID = "editor/title"
	MenuEditorContext  MenuID = "editor/context"
	MenuHover          MenuID = "hover"
	MenuGlobalNav      MenuID = "global/nav"
)

// MenuItem places an action in a menu.
type MenuItem struct {
	Action string `json:"action" yaml:"action" validate:"required"`
	When   string `json:"when,omitempty" yaml:"when,omitempty"`
	Group  string `json:"group,omitempty" yaml:"group,omitempty"`
}
