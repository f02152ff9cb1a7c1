package models

// MaxIngestRecords bounds one ingest request.
const MaxIngestRecords = 1000

// OutputRequest is the body of an ingest call.
type OutputRequest struct {
	Records Batch `json:"records" validate:"required,min=1,max=1000"`
}

// AcceptedResult is returned once a request has been handed to the dispatcher.
type AcceptedResult struct {
	Records int `json:"records"`
}
