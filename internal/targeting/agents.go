package targeting

import "sort"

// ResolveAgents returns the configured roster followed by any other agents
// found in outreach history, sorted. Blank and duplicate names are dropped.
func ResolveAgents(roster, history []string) []string {
	seen := make(map[string]bool, len(roster)+len(history))
	var agents []string
	for _, a := range roster {
		if a != "" && !seen[a] {
			seen[a] = true
			agents = append(agents, a)
		}
	}

	var discovered []string
	for _, a := range history {
		if a != "" && !seen[a] {
			seen[a] = true
			discovered = append(discovered, a)
		}
	}
	sort.Strings(discovered)
	return append(agents, discovered...)
}
