// Package prompt wraps promptui with the handful of interactive prompts
// the triplex CLIs need: confirmations, validated inputs, masked secrets,
// and single-choice selection.
package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user cancels a prompt with Ctrl+C.
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err came from the user cancelling a prompt.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort)
}

// normalize folds promptui's interrupt and abort errors into ErrAborted so
// callers handle cancellation a single way.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input prompts for a single line of text. Pressing Enter without typing
// returns defaultValue.
func Input(label, defaultValue string) (string, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: defaultValue,
	}
	value, err := p.Run()
	return value, normalize(err)
}

// InputRequired prompts for a single line of text and re-prompts until the
// user enters a non-empty value.
func InputRequired(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a value is required")
			}
			return nil
		},
	}
	value, err := p.Run()
	return value, normalize(err)
}

// InputPort prompts for a port number between 1 and 65535.
func InputPort(label string, defaultValue int) (int, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: strconv.Itoa(defaultValue),
		Validate: func(s string) error {
			port, err := strconv.Atoi(s)
			if err != nil || port < 1 || port > 65535 {
				return errors.New("port must be between 1 and 65535")
			}
			return nil
		},
	}
	value, err := p.Run()
	if err != nil {
		return 0, normalize(err)
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse port: %w", err)
	}
	return port, nil
}

// Secret prompts for a value that must not be echoed, such as an auth token
// or a KCP pre-shared key. Input is masked while typing.
func Secret(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}
	value, err := p.Run()
	return value, normalize(err)
}

// Confirm asks a yes/no question. Enter accepts the default answer.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	p := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, hint),
		IsConfirm: true,
	}
	value, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrAborted
		}
		// promptui reports both "n" and an empty answer as ErrAbort; an
		// empty answer takes the default instead.
		if errors.Is(err, promptui.ErrAbort) {
			return value == "" && defaultYes, nil
		}
		return false, err
	}
	answer := strings.ToLower(value)
	return answer == "y" || answer == "yes", nil
}

// ConfirmWithForce skips the prompt entirely when force is set, for --force
// flags and non-interactive use.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}

// SelectString presents a fixed list of choices and returns the one picked.
func SelectString(label string, choices []string) (string, error) {
	p := promptui.Select{
		Label: label,
		Items: choices,
		Size:  10,
	}
	_, value, err := p.Run()
	return value, normalize(err)
}
