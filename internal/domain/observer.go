package domain

// Observer receives live progress and completion events.
// Callbacks run on the dispatch goroutine and should return quickly.
type Observer interface {
	DownloadDidUpdate(progress DownloadRequest)
	DownloadWasCompleted(id string, response FetcherResponse)
}

// ObserverFuncs adapts plain functions to Observer. Nil funcs are skipped.
type ObserverFuncs struct {
	OnUpdate   func(progress DownloadRequest)
	OnComplete func(id string, response FetcherResponse)
}

// DownloadDidUpdate calls OnUpdate
func (o *ObserverFuncs) DownloadDidUpdate(progress DownloadRequest) {
	if o.OnUpdate != nil {
		o.OnUpdate(progress)
	}
}

// DownloadWasCompleted calls OnComplete
func (o *ObserverFuncs) DownloadWasCompleted(id string, response FetcherResponse) {
	if o.OnComplete != nil {
		o.OnComplete(id, response)
	}
}
