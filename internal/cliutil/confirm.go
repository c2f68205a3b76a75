package cliutil

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user cancels a prompt with Ctrl+C.
var ErrAborted = errors.New("cliutil: prompt aborted")

// Confirm prompts for a yes/no answer, e.g. before "gsetool demo" would
// overwrite an existing export file.
func Confirm(label string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	prompt := promptui.Prompt{Label: label + " [" + defaultStr + "]", IsConfirm: true}
	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrAborted
		}
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if result == "" {
			return defaultYes, nil
		}
		return false, err
	}

	return strings.EqualFold(result, "y") || strings.EqualFold(result, "yes"), nil
}

// ConfirmWithForce returns true immediately if force is true, otherwise
// prompts.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}
