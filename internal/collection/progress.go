package collection

// ProgressStatus is the per-item state reported while downloading.
type ProgressStatus string

const (
	StatusDownloading ProgressStatus = "downloading"
	StatusSaving      ProgressStatus = "saving"
	StatusComplete    ProgressStatus = "complete"
	StatusSkipped     ProgressStatus = "skipped"
	StatusFailed      ProgressStatus = "failed"
)

// Progress is one progress event for the item at position Current of Total.
type Progress struct {
	Current    int
	Total      int
	ReplayID   string
	Status     ProgressStatus
	Message    string
	StorageKey string
	Error      error
}

// ProgressReporter receives progress events from the orchestrator.
type ProgressReporter interface {
	Report(p Progress)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(p Progress)

func (f ProgressFunc) Report(p Progress) { f(p) }

type nopReporter struct{}

func (nopReporter) Report(Progress) {}
