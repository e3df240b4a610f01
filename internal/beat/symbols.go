package beat

// Annotation symbols that mark rhythm changes, noise, or wave fiducials rather
// than heartbeats.
var excludedSymbols = map[string]struct{}{
	"[": {}, "]": {}, "!": {}, "x": {}, "|": {}, "~": {}, "+": {}, `"`: {},
	"p": {}, "t": {}, "u": {}, "`": {}, "'": {}, "^": {}, "s": {}, "k": {}, "l": {},
}

var normalSymbols = map[string]struct{}{
	"N": {}, "L": {}, "R": {}, "e": {}, "j": {},
}

const (
	LabelNormal    = 0
	LabelAnomalous = 1
)

// Excluded reports whether symbol never becomes a Beat.
func Excluded(symbol string) bool {
	_, ok := excludedSymbols[symbol]
	return ok
}

// Label maps a retained beat symbol to 0 (normal) or 1 (anomalous).
func Label(symbol string) int {
	if _, ok := normalSymbols[symbol]; ok {
		return LabelNormal
	}
	return LabelAnomalous
}
