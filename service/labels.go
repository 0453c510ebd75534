package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LabelSet is the ordered class vocabulary. Index i names model output i.
type LabelSet []string

// ParseLabels reads one label per line. A leading numeric index token
// ("3 amber capsule") is dropped; blank lines are skipped.
func ParseLabels(text string) LabelSet {
	var labels LabelSet
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Only a single space separates the index; tabs stay part of the label.
		tokens := strings.Split(line, " ")
		if len(tokens) > 1 && isIndex(tokens[0]) {
			line = strings.TrimSpace(strings.Join(tokens[1:], " "))
		}
		labels = append(labels, line)
	}
	return labels
}

func isIndex(token string) bool {
	_, err := strconv.Atoi(token)
	return err == nil
}

// LoadLabels fetches and parses a label resource. An unreadable or empty
// resource is reported as ErrLabelsUnavailable.
func LoadLabels(loader TextLoader, id string) (LabelSet, error) {
	text, err := loader.LoadText(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLabelsUnavailable, id, err)
	}
	labels := ParseLabels(text)
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrLabelsUnavailable, id)
	}
	return labels, nil
}

type DirTextLoader string

func (d DirTextLoader) LoadText(id string) (string, error) {
	b, err := os.ReadFile(filepath.Join(string(d), id))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
