package detector

// Outcome classifies what happened to one query event.
type Outcome int

const (
	OutcomeFilteredMalformed Outcome = iota
	OutcomeFilteredWhitelist
	OutcomeFilteredNoSubdomain
	OutcomeClean
	OutcomeAlerted
)

var outcomeNames = [...]string{
	OutcomeFilteredMalformed:   "filtered_malformed",
	OutcomeFilteredWhitelist:   "filtered_whitelist",
	OutcomeFilteredNoSubdomain: "filtered_no_subdomain",
	OutcomeClean:               "clean",
	OutcomeAlerted:             "alerted",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Filtered reports whether the event stopped before scoring.
func (o Outcome) Filtered() bool {
	return o < OutcomeClean
}
