package tools

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jamesruggles/carbonara/internal/registry"
)

var dangerousChars = regexp.MustCompile("[;|`$(){}\\[\\]!<>\\\\\"'\\s]")

// ValidateURL checks that a target is an absolute HTTP/HTTPS URL.
func ValidateURL(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("URL cannot be empty")
	}

	if dangerousChars.MatchString(target) {
		return errors.New("URL contains invalid characters")
	}

	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return errors.New("URL must start with http:// or https://")
	}

	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}

	return nil
}

// ValidatePath checks that target names an existing file or directory and
// returns its absolute form.
func ValidatePath(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.New("path cannot be empty")
	}
	if strings.ContainsRune(target, 0) {
		return "", errors.New("path contains invalid characters")
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("path %s does not exist", abs)
		}
		return "", fmt.Errorf("checking path: %w", err)
	}
	return abs, nil
}

// ValidateTarget validates target for the kind of input tool expects and
// returns the value to pass on the command line.
func ValidateTarget(tool registry.Tool, target string) (string, error) {
	if tool.Target == registry.TargetURL {
		if err := ValidateURL(target); err != nil {
			return "", err
		}
		return strings.TrimSpace(target), nil
	}
	return ValidatePath(target)
}
