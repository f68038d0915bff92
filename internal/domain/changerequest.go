package domain

// MetaDataChangeRequest is a proposed, not-yet-applied partial update to a
// metadata document. It is consumed and deleted once applied or rejected.
type MetaDataChangeRequest struct {
	ID          string         `json:"id,omitempty"`
	MetaDataID  string         `json:"metaDataId"`
	Type        string         `json:"type"`
	PathUpdates map[string]any `json:"pathUpdates"`
	AuditData   map[string]any `json:"auditData"`
}

// ChangeRequestsCollection holds pending change requests across all types.
const ChangeRequestsCollection = "change_requests"
