package ingest

// Outcome is the single result of processing one feed entry.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeRejectedPremiumURL
	OutcomeRejectedPremiumContent
	OutcomeRejectedTooShort
	OutcomeMerged
	OutcomeInserted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRejectedPremiumURL:
		return "rejected-premium-url"
	case OutcomeRejectedPremiumContent:
		return "rejected-premium-content"
	case OutcomeRejectedTooShort:
		return "rejected-too-short"
	case OutcomeMerged:
		return "merged"
	case OutcomeInserted:
		return "inserted"
	default:
		return "unknown"
	}
}

// Stats summarises one feed run.
type Stats struct {
	Feed      string
	FeedError error // set when the feed itself could not be fetched or parsed
	Entries   int

	Skipped                int
	RejectedPremiumURL     int
	RejectedPremiumContent int
	RejectedTooShort       int
	Merged                 int
	Inserted               int
}

func (s *Stats) add(o Outcome) {
	s.Entries++
	switch o {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeRejectedPremiumURL:
		s.RejectedPremiumURL++
	case OutcomeRejectedPremiumContent:
		s.RejectedPremiumContent++
	case OutcomeRejectedTooShort:
		s.RejectedTooShort++
	case OutcomeMerged:
		s.Merged++
	case OutcomeInserted:
		s.Inserted++
	}
}

// Total sums a slice of feed stats.
func Total(all []Stats) Stats {
	var t Stats
	for _, s := range all {
		t.Entries += s.Entries
		t.Skipped += s.Skipped
		t.RejectedPremiumURL += s.RejectedPremiumURL
		t.RejectedPremiumContent += s.RejectedPremiumContent
		t.RejectedTooShort += s.RejectedTooShort
		t.Merged += s.Merged
		t.Inserted += s.Inserted
	}
	return t
}
