package runner

import (
	"net/url"
	"regexp"
	"strings"
)

// Kind labels a line of child output.
type Kind int

const (
	// KindOther is any line without special meaning.
	KindOther Kind = iota
	// KindReady is the dev server announcing its listening URL.
	KindReady
	// KindKnownFailure is a recognized failure signature with a remedy.
	KindKnownFailure
)

// Match is the result of classifying one line.
type Match struct {
	Kind Kind
	URL  string // listening URL, set for KindReady
	Hint string // operator guidance, set for KindKnownFailure
}

// readyPattern matches the dev server's listening announcement, capturing
// the URL.
var readyPattern = regexp.MustCompile(`Local:\s+(https?://\S+)`)

// knownFailures maps failure signatures in child output to a remedy the
// operator can act on.
var knownFailures = []struct {
	needle string
	hint   string
}{
	{
		needle: "bin executable does not exist on disk",
		hint: "Try setting `DEVRUN_USE_NPM=1` and re-running `devrun frontend` " +
			"to use npm instead of bun.",
	},
}

// Classify inspects a line of child output.
func Classify(line string) Match {
	if m := readyPattern.FindStringSubmatch(line); m != nil {
		return Match{Kind: KindReady, URL: m[1]}
	}
	for _, f := range knownFailures {
		if strings.Contains(line, f.needle) {
			return Match{Kind: KindKnownFailure, Hint: f.hint}
		}
	}
	return Match{Kind: KindOther}
}

// JoinPathPrefix resolves prefix against base the way a browser would,
// so "/admin" lands on the same host and "sub/" appends. Unparseable
// inputs leave base untouched.
func JoinPathPrefix(base, prefix string) string {
	if prefix == "" || prefix == "/" {
		return base
	}
	bu, err := url.Parse(base)
	if err != nil {
		return base
	}
	pu, err := url.Parse(prefix)
	if err != nil {
		return base
	}
	return bu.ResolveReference(pu).String()
}
