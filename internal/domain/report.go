package domain

// FixVersionReport collects failure messages of a fix-version run.
// An empty report means every sub-operation succeeded. Reports are never
// mutated; use Merge to combine them.
type FixVersionReport struct {
	messages []string
}

// NewFixVersionReport builds a report holding the given messages.
func NewFixVersionReport(messages ...string) FixVersionReport {
	if len(messages) == 0 {
		return FixVersionReport{}
	}
	return FixVersionReport{messages: append([]string(nil), messages...)}
}

// Merge returns a new report with the messages of r followed by those of others.
func (r FixVersionReport) Merge(others ...FixVersionReport) FixVersionReport {
	total := len(r.messages)
	for _, o := range others {
		total += len(o.messages)
	}
	if total == 0 {
		return FixVersionReport{}
	}

	merged := make([]string, 0, total)
	merged = append(merged, r.messages...)
	for _, o := range others {
		merged = append(merged, o.messages...)
	}
	return FixVersionReport{messages: merged}
}

// Messages returns a copy of the failure messages in order.
func (r FixVersionReport) Messages() []string {
	return append([]string(nil), r.messages...)
}

// Len is the number of failed sub-operations.
func (r FixVersionReport) Len() int {
	return len(r.messages)
}

// OK reports whether the run had no failures.
func (r FixVersionReport) OK() bool {
	return len(r.messages) == 0
}
