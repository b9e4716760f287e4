package schemas

import "time"

// RecipientInfo describes one downstream consumer of dissemination reports,
// loaded from the recipient roster at startup.
type RecipientInfo struct {
	RecipientID string      `json:"recipient_id" mapstructure:"recipient_id"`
	AccessLevel AccessLevel `json:"access_level" mapstructure:"access_level"`
	// Location is the recipient's static position. Mobile recipients leave it
	// nil and set LinkedEntityID instead, resolving their position through
	// the COP at decision time.
	Location        *Location `json:"location,omitempty" mapstructure:"location"`
	LinkedEntityID  string    `json:"linked_entity_id,omitempty" mapstructure:"linked_entity_id"`
	OperationalRole string    `json:"operational_role" mapstructure:"operational_role"`
	// PriorityEntityTypes filters which entity types the recipient cares
	// about. The single element "all" is a wildcard; a category name such as
	// "aircraft" matches any type sharing that prefix.
	PriorityEntityTypes []string      `json:"priority_entity_types" mapstructure:"priority_entity_types"`
	ReceiveThreatLevels []ThreatLevel `json:"receive_threat_levels,omitempty" mapstructure:"receive_threat_levels"`
	InterestAreas       []string      `json:"interest_areas,omitempty" mapstructure:"interest_areas"`
	FormatType          OutputFormat  `json:"format_type" mapstructure:"format_type"`
	// TopicOverride replaces the default per-recipient MQTT topic when set.
	TopicOverride         string `json:"topic_override,omitempty" mapstructure:"topic_override"`
	QoS                   *byte  `json:"qos,omitempty" mapstructure:"qos"`
	AutoDisseminate       bool   `json:"auto_disseminate" mapstructure:"auto_disseminate"`
	RequiresHumanApproval bool   `json:"requires_human_approval" mapstructure:"requires_human_approval"`
	// DeceptionAuthorized marks an adversary-facing channel cleared for
	// intentional disinformation. Only meaningful for AccessEnemy.
	DeceptionAuthorized bool `json:"deception_authorized,omitempty" mapstructure:"deception_authorized"`
}

// DistanceThreshold is the resolved need-to-know envelope for one
// (entity type, classification, role) combination.
type DistanceThreshold struct {
	MustNotifyKm     float64 `json:"must_notify_km" mapstructure:"must_notify_km"`
	NeverNotifyKm    float64 `json:"never_notify_km" mapstructure:"never_notify_km"`
	ThreatMultiplier float64 `json:"threat_multiplier" mapstructure:"threat_multiplier"`
	Reasoning        string  `json:"reasoning" mapstructure:"reasoning"`
}

// DecisionType classifies a need-to-know outcome.
type DecisionType string

const (
	DecisionMustNotify  DecisionType = "must_notify"
	DecisionNeverNotify DecisionType = "never_notify"
	DecisionAmbiguous   DecisionType = "ambiguous"
)

// NotificationDecision is the result of the distance-based need-to-know
// check for one recipient.
type NotificationDecision struct {
	ShouldNotify bool         `json:"should_notify"`
	DecisionType DecisionType `json:"decision_type"`
	DistanceKm   float64      `json:"distance_km"`
	Reasoning    string       `json:"reasoning"`
}

// OutgoingMessage is the router's terminal output, one per (threat,
// authorized recipient) pair.
type OutgoingMessage struct {
	MessageID   string       `json:"message_id"`
	DecisionID  string       `json:"decision_id"`
	RecipientID string       `json:"recipient_id"`
	FormatType  OutputFormat `json:"format_type"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
}

// DisseminationEnvelope is the JSON payload published on the transport for
// one outgoing message.
type DisseminationEnvelope struct {
	MessageID   string       `json:"message_id"`
	RecipientID string       `json:"recipient_id"`
	FormatType  OutputFormat `json:"format_type"`
	Timestamp   time.Time    `json:"timestamp"`
	Source      string       `json:"source"`
	Content     string       `json:"content"`
	DecisionID  string       `json:"decision_id"`
}
