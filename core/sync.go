package core

const maxSyncErrors = 50

// SyncResult counts what a sync run did to the local tables.
type SyncResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Fail records a per-record failure. Only the first errors are kept.
func (r *SyncResult) Fail(err error) {
	r.Failed++
	if len(r.Errors) < maxSyncErrors {
		r.Errors = append(r.Errors, err.Error())
	}
}

func (r *SyncResult) Merge(other SyncResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	for _, e := range other.Errors {
		if len(r.Errors) >= maxSyncErrors {
			break
		}
		r.Errors = append(r.Errors, e)
	}
}

func (r SyncResult) Total() int {
	return r.Created + r.Updated + r.Skipped + r.Failed
}
