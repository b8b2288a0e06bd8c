package layout

import (
	"github.com/go-text/typesetting/language"
	"golang.org/x/text/unicode/bidi"
)

// run is a maximal piece of one line with a single span, bidi direction and
// script.
type run struct {
	span   int
	text   []rune
	rtl    bool
	script language.Script
}

// splitRuns splits the runes of one line into runs. spans[i] is the span
// index of runes[i]. Runs are returned in visual order.
func splitRuns(runes []rune, spans []int) []run {
	if len(runes) == 0 {
		return nil
	}
	rtl := bidiLevels(runes)
	scripts := resolveScripts(runes)

	runs := make([]run, 0, 4)
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && rtl[i] == rtl[start] && scripts[i] == scripts[start] && spans[i] == spans[start] {
			continue
		}
		runs = append(runs, run{
			span:   spans[start],
			text:   runes[start:i],
			rtl:    rtl[start],
			script: scripts[start],
		})
		start = i
	}
	return visualOrder(runs)
}

// bidiLevels reports for each rune whether it belongs to a right-to-left
// run.
func bidiLevels(runes []rune) []bool {
	rtl := make([]bool, len(runes))

	var p bidi.Paragraph
	if _, err := p.SetString(string(runes), bidi.DefaultDirection(bidi.LeftToRight)); err != nil {
		return rtl
	}
	ordering, err := p.Order()
	if err != nil {
		return rtl
	}
	// Pos is in runes, end inclusive.
	for i := range ordering.NumRuns() {
		r := ordering.Run(i)
		if r.Direction() != bidi.RightToLeft {
			continue
		}
		start, end := r.Pos()
		for j := start; j <= end && j < len(rtl); j++ {
			rtl[j] = true
		}
	}
	return rtl
}

// resolveScripts assigns a script to every rune. Common and inherited runes
// take the script of the preceding rune, or of the first concrete one when
// they lead the line.
func resolveScripts(runes []rune) []language.Script {
	scripts := make([]language.Script, len(runes))
	first := language.Latin
	for _, r := range runes {
		if s := language.LookupScript(r); s != language.Common && s != language.Inherited {
			first = s
			break
		}
	}
	last := first
	for i, r := range runes {
		s := language.LookupScript(r)
		if s == language.Common || s == language.Inherited || s == language.Unknown {
			s = last
		}
		scripts[i] = s
		last = s
	}
	return scripts
}

// visualOrder reverses each maximal sequence of right-to-left runs. Lines
// have a left-to-right base direction, so embedding levels are 0 or 1.
func visualOrder(runs []run) []run {
	for i := 0; i < len(runs); {
		if !runs[i].rtl {
			i++
			continue
		}
		j := i
		for j < len(runs) && runs[j].rtl {
			j++
		}
		for a, b := i, j-1; a < b; a, b = a+1, b-1 {
			runs[a], runs[b] = runs[b], runs[a]
		}
		i = j
	}
	return runs
}
