package analysis

import "strings"

// English stopwords, plus the filler that dominates auto-captions.
var defaultStopwords = strings.Fields(`
a about above after again against all also am an and any are aren't as at
be because been before being below between both but by
can can't cannot could couldn't
did didn't do does doesn't doing don't down during
each else ever few for from further
get got had hadn't has hasn't have haven't having he he'd he'll he's her here
here's hers herself him himself his how how's however
i i'd i'll i'm i've if in into is isn't it it's its itself just
k let's like me more most mustn't my myself
no nor not now of off on once only or other otherwise ought our ours ourselves
out over own r really same shall shan't she she'd she'll she's should shouldn't
since so some such than that that's the their theirs them themselves then there
there's these they they'd they'll they're they've this those through to too
under until up very was wasn't we we'd we'll we're we've were weren't what
what's when when's where where's which while who who's whom why why's with
won't would wouldn't www com http https
you you'd you'll you're you've your yours yourself yourselves
um uh yeah oh okay ok gonna wanna know going
`)

// StopwordSet is a lookup set of lower-cased words.
type StopwordSet map[string]struct{}

// DefaultStopwords returns a fresh copy of the English list plus extra.
func DefaultStopwords(extra ...string) StopwordSet {
	s := make(StopwordSet, len(defaultStopwords)+len(extra))
	for _, w := range defaultStopwords {
		s[w] = struct{}{}
	}
	return s.With(extra...)
}

// With adds words (lower-cased, trimmed) and returns s.
func (s StopwordSet) With(words ...string) StopwordSet {
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			s[w] = struct{}{}
		}
	}
	return s
}

func (s StopwordSet) Has(w string) bool {
	_, ok := s[w]
	return ok
}
