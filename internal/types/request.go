package types

// RequestType classifies a remote call for logging
type RequestType string

const (
	RequestTypeGetByID       RequestType = "get"
	RequestTypeListOrSearch  RequestType = "list"
	RequestTypeMutation      RequestType = "mutation"
	RequestTypeDownload      RequestType = "download"
	RequestTypeUpload        RequestType = "upload"
	RequestTypeChanges       RequestType = "changes"
	RequestTypeAccountLookup RequestType = "about"
)

// RequestContext carries per-request metadata through the remote layer
type RequestContext struct {
	Account     string
	TraceID     string
	RequestType RequestType
	FileIDs     []string
	ParentIDs   []string
}
