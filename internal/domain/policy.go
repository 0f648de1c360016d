package domain

import "fmt"

// SelectionPolicy decides which questions a test draws and in which order.
type SelectionPolicy string

const (
	PolicyRandom   SelectionPolicy = "random"
	PolicyUntested SelectionPolicy = "untested"
	PolicyWeakest  SelectionPolicy = "weakest"
)

// ParsePolicy maps a form value to a policy. An empty value means random.
func ParsePolicy(s string) (SelectionPolicy, error) {
	switch SelectionPolicy(s) {
	case "", PolicyRandom:
		return PolicyRandom, nil
	case PolicyUntested:
		return PolicyUntested, nil
	case PolicyWeakest:
		return PolicyWeakest, nil
	}
	return "", fmt.Errorf("unknown selection policy %q", s)
}
