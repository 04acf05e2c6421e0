// Package accountform collects a new mail account interactively.
package accountform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/mailsync/internal/model"
)

// Form holds the values bound to the huh fields.
type Form struct {
	ID           string
	Provider     string
	Username     string
	ClientID     string
	ClientSecret string
	Tenant       string
	RefreshToken string
	Host         string
	Port         string
	TLS          bool
	Password     string
	Enabled      bool
	MarkRead     bool

	existing map[string]bool
}

// New returns a Form with defaults filled in. IDs in existing are
// rejected.
func New(existing []model.Account) *Form {
	f := &Form{
		Provider: string(model.ProviderGraph),
		Port:     "993",
		TLS:      true,
		Enabled:  true,
		MarkRead: true,
		existing: make(map[string]bool, len(existing)),
	}
	for _, a := range existing {
		f.existing[a.ID] = true
	}
	return f
}

// Run shows the form. It returns huh.ErrUserAborted if the user quits.
func (f *Form) Run(ctx context.Context) error {
	return f.build().RunWithContext(ctx)
}

func (f *Form) isIMAP() bool { return f.Provider == string(model.ProviderIMAP) }

func (f *Form) build() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Options(
					huh.NewOption("Microsoft 365 / Outlook (Graph)", string(model.ProviderGraph)),
					huh.NewOption("Gmail", string(model.ProviderGmail)),
					huh.NewOption("IMAP", string(model.ProviderIMAP)),
				).
				Value(&f.Provider),
			huh.NewInput().
				Title("Account ID").
				Description("A short unique label, e.g. work").
				Placeholder("work").
				Value(&f.ID).
				Validate(f.validateID),
			huh.NewInput().
				Title("Username").
				Description("Sign-in name or mailbox address").
				Placeholder("user@example.com").
				Value(&f.Username).
				Validate(validateRequired("Username")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Client ID").
				Description("OAuth application (client) ID").
				Value(&f.ClientID).
				Validate(validateRequired("Client ID")),
			huh.NewInput().
				Title("Client secret").
				Description("Leave empty for public clients").
				EchoMode(huh.EchoModePassword).
				Value(&f.ClientSecret),
			huh.NewInput().
				Title("Tenant").
				Description("Azure AD tenant; Graph only").
				Placeholder("common").
				Value(&f.Tenant),
			huh.NewInput().
				Title("Refresh token").
				Description("Obtained from your sign-in flow; stored in the keyring").
				EchoMode(huh.EchoModePassword).
				Value(&f.RefreshToken).
				Validate(validateRequired("Refresh token")),
		).WithHideFunc(f.isIMAP),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Placeholder("imap.example.com").
				Value(&f.Host).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Placeholder("993").
				Value(&f.Port).
				Validate(validatePort),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Off uses STARTTLS").
				Affirmative("Yes").
				Negative("No").
				Value(&f.TLS),
			huh.NewInput().
				Title("Password").
				Description("Account password or app password; stored in the keyring").
				EchoMode(huh.EchoModePassword).
				Value(&f.Password).
				Validate(validateRequired("Password")),
		).WithHideFunc(func() bool { return !f.isIMAP() }),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable background sync").
				Value(&f.Enabled),
			huh.NewConfirm().
				Title("Mark listed messages as read").
				Value(&f.MarkRead),
		),
	)
}

// Account converts the answers into a config entry. Credentials are not
// part of it; see Secret.
func (f *Form) Account() model.Account {
	a := model.Account{
		ID:       strings.TrimSpace(f.ID),
		Username: strings.TrimSpace(f.Username),
		Provider: model.Provider(f.Provider),
		Enabled:  f.Enabled,
		MarkRead: f.MarkRead,
	}
	if f.isIMAP() {
		a.Host = strings.TrimSpace(f.Host)
		a.Port = strings.TrimSpace(f.Port)
		a.TLS = f.TLS
		return a
	}
	a.ClientID = strings.TrimSpace(f.ClientID)
	a.ClientSecret = f.ClientSecret
	if a.Provider == model.ProviderGraph {
		a.Tenant = strings.TrimSpace(f.Tenant)
	}
	return a
}

// Secret returns the credential to store: the IMAP password or the OAuth
// refresh token.
func (f *Form) Secret() string {
	if f.isIMAP() {
		return f.Password
	}
	return strings.TrimSpace(f.RefreshToken)
}

func (f *Form) validateID(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("Account ID is required")
	}
	if strings.ContainsAny(s, "/ \t") {
		return fmt.Errorf("Account ID must not contain spaces or slashes")
	}
	if f.existing[s] {
		return fmt.Errorf("account %q already exists", s)
	}
	return nil
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("port is required")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}
