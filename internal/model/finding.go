package model

// DetectorName identifies one of the fixed set of fraud detectors.
type DetectorName string

// Detector name constants.
const (
	DetectorDuplicate    DetectorName = "duplicate"
	DetectorInflation    DetectorName = "inflation"
	DetectorGhostVendor  DetectorName = "ghost_vendor"
	DetectorSplitBilling DetectorName = "split_billing"
)

// Detectors lists every detector in canonical order.
var Detectors = []DetectorName{
	DetectorDuplicate,
	DetectorInflation,
	DetectorGhostVendor,
	DetectorSplitBilling,
}

// Order returns the canonical position of the detector, or len(Detectors)
// for an unknown name.
func (d DetectorName) Order() int {
	for i, name := range Detectors {
		if name == d {
			return i
		}
	}
	return len(Detectors)
}

// Flag returns the fraud flag a triggered finding of this detector raises.
func (d DetectorName) Flag() string {
	switch d {
	case DetectorDuplicate:
		return "duplicate"
	case DetectorInflation:
		return "inflated_expense"
	case DetectorGhostVendor:
		return "ghost_vendor"
	case DetectorSplitBilling:
		return "split_billing"
	default:
		return string(d)
	}
}

// FindingStatus is the tri-state outcome of a detector run.
type FindingStatus string

// Finding status constants.
const (
	StatusNotTriggered FindingStatus = "not_triggered"
	StatusTriggered    FindingStatus = "triggered"
	// StatusDegraded means the detector could not reach its backing data;
	// the score carries no information.
	StatusDegraded FindingStatus = "degraded"
)

// Ghost vendor signal names.
const (
	SignalNovelty     = "novelty"
	SignalNamePattern = "name_pattern"
	SignalContact     = "contact_incomplete"
)

// Evidence carries detector-specific supporting data. Only the fields
// relevant to the producing detector are set.
type Evidence struct {
	ZScore            *float64 `json:"z_score,omitempty"`
	BaselineMean      *float64 `json:"baseline_mean,omitempty"`
	CombinedAmount    *float64 `json:"combined_amount,omitempty"`
	MatchedInvoiceIDs []string `json:"matched_invoice_ids,omitempty"`
	MemberInvoiceIDs  []string `json:"member_invoice_ids,omitempty"`
	Signals           []string `json:"signals,omitempty"`
	SampleCount       int      `json:"sample_count,omitempty"`
	CandidateCount    int      `json:"candidate_count,omitempty"`
	ExactMatch        bool     `json:"exact_match,omitempty"`
}

// Finding is the evidence object produced by one detector for one invoice.
type Finding struct {
	Evidence    Evidence      `json:"evidence"`
	Detector    DetectorName  `json:"detector"`
	Status      FindingStatus `json:"status"`
	Reason      string        `json:"reason"`
	Degradation string        `json:"degradation,omitempty"`
	Score       float64       `json:"score"`
	Confidence  float64       `json:"confidence"`
}

// Triggered reports whether the finding raised its detector's flag.
func (f Finding) Triggered() bool {
	return f.Status == StatusTriggered
}

// Degraded reports whether the detector ran without its backing data.
func (f Finding) Degraded() bool {
	return f.Status == StatusDegraded
}

// DegradedFinding builds the zero-confidence finding a detector returns when
// its lookup fails.
func DegradedFinding(detector DetectorName, cause error) Finding {
	msg := "backing data unavailable"
	if cause != nil {
		msg = cause.Error()
	}
	return Finding{
		Detector:    detector,
		Status:      StatusDegraded,
		Reason:      "detector degraded: " + msg,
		Degradation: msg,
	}
}
