package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// maximum edit distance still worth suggesting
const suggestThreshold = 3

func suggestCommand(unknown string, commands []*Command) string {
	best, bestDist := "", suggestThreshold+1
	for _, cmd := range commands {
		if d := levenshtein(unknown, cmd.Name); d < bestDist {
			best, bestDist = cmd.Name, d
		}
	}
	return best
}

// suggestFlag finds the first undefined long flag in args and returns the
// closest defined one as "--name".
func suggestFlag(args []string, fs *pflag.FlagSet) string {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		if i := strings.IndexByte(name, '='); i >= 0 {
			name = name[:i]
		}
		if name == "" || fs.Lookup(name) != nil {
			continue
		}

		best, bestDist := "", suggestThreshold+1
		fs.VisitAll(func(f *pflag.Flag) {
			if d := levenshtein(name, f.Name); d < bestDist {
				best, bestDist = f.Name, d
			}
		})
		if best != "" {
			return "--" + best
		}
		return ""
	}
	return ""
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
