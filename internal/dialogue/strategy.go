package dialogue

// ExtractionStrategy decides when the external entity extractor is worth a
// call. The default only pays for it when local rules came up empty or the
// message needs temporal reasoning; "always" and "never" exist for tests and
// for running without an extractor at all.
type ExtractionStrategy interface {
	ShouldExtract(message string, localIntent Intent) bool
}

type AlwaysExtract struct{}

func (AlwaysExtract) ShouldExtract(string, Intent) bool { return true }

type NeverExtract struct{}

func (NeverExtract) ShouldExtract(string, Intent) bool { return false }

// OnAmbiguity extracts when the rule-based classifier was inconclusive or the
// message contains a qualifier word.
type OnAmbiguity struct{}

func (OnAmbiguity) ShouldExtract(message string, localIntent Intent) bool {
	return localIntent == IntentNone || HasQualifier(message)
}
