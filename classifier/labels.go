package classifier

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadLabels reads the labels used to train the Model from the given text file.
// It should contain one label per line, blank lines are skipped.
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var labels []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		labels = append(labels, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("label file %s contains no labels", file)
	}

	return labels, nil
}
