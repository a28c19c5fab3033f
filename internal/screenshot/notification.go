package screenshot

// NotificationKind labels the closed set of notification variants.
type NotificationKind string

// Notification kinds delivered by the pipeline.
const (
	KindArtifactReady NotificationKind = "artifact_ready"
	KindInvalidURL    NotificationKind = "invalid_url"
	KindOperatorAlert NotificationKind = "operator_alert"
)

// Notification is one of ArtifactReady, InvalidURL, or OperatorAlert.
// Each variant carries exactly the data its handler needs.
type Notification interface {
	Kind() NotificationKind
}

// ArtifactReady tells a job owner a fresh capture is available.
type ArtifactReady struct {
	Address     string `json:"address"`
	JobID       string `json:"job_id"`
	Title       string `json:"title,omitempty"`
	ArtifactURI string `json:"artifact_uri"`
}

// Kind implements Notification.
func (ArtifactReady) Kind() NotificationKind { return KindArtifactReady }

// InvalidURL tells a job owner their URL could not be captured and the job
// has been paused.
type InvalidURL struct {
	Address string `json:"address"`
	JobID   string `json:"job_id"`
	Title   string `json:"title,omitempty"`
	Reason  string `json:"reason"`
}

// Kind implements Notification.
func (InvalidURL) Kind() NotificationKind { return KindInvalidURL }

// OperatorAlert flags an internal persistence problem to the operator
// channel, never to the job owner.
type OperatorAlert struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// Kind implements Notification.
func (OperatorAlert) Kind() NotificationKind { return KindOperatorAlert }
