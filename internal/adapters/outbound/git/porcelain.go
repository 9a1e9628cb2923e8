package git

import (
	"bufio"
	"strings"

	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

// unmerged XY codes of git status --porcelain=v1.
var conflictCodes = map[string]struct{}{
	"DD": {}, "AU": {}, "UD": {}, "UA": {}, "DU": {}, "AA": {}, "UU": {},
}

// parsePorcelain classifies porcelain v1 output and lists unmerged paths.
func parsePorcelain(out string) (supervisor.WorkingTree, []string) {
	var (
		conflicts []string
		changed   bool
	)

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if len(line) < 4 {
			continue
		}

		changed = true

		if _, ok := conflictCodes[line[:2]]; ok {
			conflicts = append(conflicts, unquote(line[3:]))
		}
	}

	switch {
	case len(conflicts) > 0:
		return supervisor.TreeConflict, conflicts
	case changed:
		return supervisor.TreeModified, nil
	default:
		return supervisor.TreeClean, nil
	}
}

func unquote(path string) string {
	if len(path) >= 2 && path[0] == '"' && path[len(path)-1] == '"' {
		return path[1 : len(path)-1]
	}

	return path
}
