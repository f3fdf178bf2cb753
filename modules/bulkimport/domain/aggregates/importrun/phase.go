package importrun

type PhaseKey string

const (
	PhaseReadingFile          PhaseKey = "reading_file"
	PhaseIdentifyingLocations PhaseKey = "identifying_locations"
	PhaseExtractingStreams    PhaseKey = "extracting_streams"
	PhaseCategorizing         PhaseKey = "categorizing"
)

type PhaseInfo struct {
	Label       string
	Description string
	Progress    int
}

// phaseTable is kept in ascending progress order; review_ready implies 100.
var phaseTable = []PhaseKey{
	PhaseReadingFile,
	PhaseIdentifyingLocations,
	PhaseExtractingStreams,
	PhaseCategorizing,
}

var phaseInfo = map[PhaseKey]PhaseInfo{
	PhaseReadingFile: {
		Label:       "Reading file",
		Description: "Parsing the uploaded document",
		Progress:    20,
	},
	PhaseIdentifyingLocations: {
		Label:       "Identifying locations",
		Description: "Detecting service locations in the document",
		Progress:    45,
	},
	PhaseExtractingStreams: {
		Label:       "Extracting waste streams",
		Description: "Pulling candidate stream records per location",
		Progress:    70,
	},
	PhaseCategorizing: {
		Label:       "Categorizing",
		Description: "Classifying streams and scoring confidence",
		Progress:    90,
	},
}

// Phases returns every known phase key in ascending progress order.
func Phases() []PhaseKey {
	out := make([]PhaseKey, len(phaseTable))
	copy(out, phaseTable)
	return out
}

// PhaseInfoFor resolves a phase key reported by the extraction pipeline.
// Unknown keys report false so callers keep the previous display state.
func PhaseInfoFor(key PhaseKey) (PhaseInfo, bool) {
	info, ok := phaseInfo[key]
	return info, ok
}

// ProgressFor returns the display percentage for a run snapshot: the phase
// percentage while processing, 100 once extraction settled.
func ProgressFor(run ImportRun) int {
	if run.Status().ExtractionSettled() {
		return 100
	}
	if info, ok := phaseInfo[run.Phase()]; ok {
		return info.Progress
	}
	return 0
}
