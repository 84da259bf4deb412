package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultEnvVar holds the node keystore passphrase.
const DefaultEnvVar = "JID_KEYSTORE_PASSPHRASE"

var (
	// ErrEmpty is returned for blank or whitespace-only passphrases.
	ErrEmpty = errors.New("passphrase: empty")
	// ErrMismatch is returned when the confirmation differs from the first entry.
	ErrMismatch = errors.New("passphrase: confirmation does not match")
	// ErrNoTerminal is returned when prompting is needed but stdin is not a tty.
	ErrNoTerminal = errors.New("passphrase: no terminal to prompt on")
)

// PromptFunc reads one secret after printing prompt.
type PromptFunc func(prompt string) (string, error)

// Source resolves a keystore passphrase once, from an environment variable
// when set, otherwise from an interactive prompt.
type Source struct {
	envVar string
	label  string
	prompt PromptFunc

	mu       sync.Mutex
	resolved bool
	value    string
}

// NewSource reads envVar (DefaultEnvVar when blank) and falls back to the
// terminal. label names the keystore in prompts.
func NewSource(envVar, label string) *Source {
	if envVar = strings.TrimSpace(envVar); envVar == "" {
		envVar = DefaultEnvVar
	}
	if label = strings.TrimSpace(label); label == "" {
		label = "keystore"
	}
	return &Source{envVar: envVar, label: label, prompt: terminalPrompt}
}

// WithPrompt replaces the terminal prompt, mainly for tests.
func (s *Source) WithPrompt(fn PromptFunc) *Source {
	s.prompt = fn
	return s
}

// Static always yields value.
func Static(value string) *Source {
	return &Source{label: "keystore", prompt: func(string) (string, error) { return value, nil }}
}

// Get returns the passphrase for an existing keystore.
func (s *Source) Get() (string, error) {
	return s.resolve(false)
}

// GetNew returns the passphrase for a keystore about to be created. Prompted
// values are asked for twice.
func (s *Source) GetNew() (string, error) {
	return s.resolve(true)
}

func (s *Source) resolve(confirm bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return s.value, nil
	}
	value, err := s.lookup(confirm)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s: %w", s.label, ErrEmpty)
	}
	s.value, s.resolved = value, true
	return value, nil
}

func (s *Source) lookup(confirm bool) (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			return value, nil
		}
	}
	first, err := s.prompt(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if err != nil {
		return "", fmt.Errorf("%s: %w (set %s)", s.label, err, s.envVar)
	}
	if !confirm || s.envVar == "" {
		return first, nil
	}
	second, err := s.prompt(fmt.Sprintf("Repeat %s passphrase: ", s.label))
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.label, err)
	}
	if first != second {
		return "", ErrMismatch
	}
	return first, nil
}

func terminalPrompt(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
