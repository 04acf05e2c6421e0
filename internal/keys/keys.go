package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the mailbox keybindings.
type KeyMap struct {
	// Navigation
	Down        key.Binding
	Up          key.Binding
	NextAccount key.Binding
	PrevAccount key.Binding

	// Selection
	Open key.Binding
	Back key.Binding
	Quit key.Binding

	// Search
	Search key.Binding

	// Overlays
	Help key.Binding
	Log  key.Binding

	// Actions
	Retry  key.Binding
	Delete key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		NextAccount: key.NewBinding(
			key.WithKeys("tab", "l"),
			key.WithHelp("tab", "next account"),
		),
		PrevAccount: key.NewBinding(
			key.WithKeys("shift+tab", "h"),
			key.WithHelp("shift+tab", "previous account"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open message"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Log: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "sync log"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh / retry"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "delete message"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Open, k.Retry, k.Delete, k.Search, k.Help, k.Quit,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextAccount, k.PrevAccount},
		{k.Open, k.Back, k.Search},
		{k.Retry, k.Delete, k.Log, k.Help, k.Quit},
	}
}
