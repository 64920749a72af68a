package events

// Topics emitted by the order builder.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
)

var knownTopics = map[string]struct{}{
	TopicOrderCreated:       {},
	TopicOrderStatusChanged: {},
}

// IsKnownTopic reports whether topic is one the bus accepts.
func IsKnownTopic(topic string) bool {
	_, ok := knownTopics[topic]
	return ok
}

// Topics lists every accepted topic in a stable order.
func Topics() []string {
	return []string{TopicOrderCreated, TopicOrderStatusChanged}
}
