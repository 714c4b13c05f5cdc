package bus

// Topic names used across the bridge. The webhook boundary publishes raw
// provider documents on these topics; adapters and the router subscribe.
const (
	TopicWasenderIncoming = "wasender.incoming"
	TopicWasenderOutgoing = "wasender.outgoing"
	TopicVKIncoming       = "vk.incoming"
	TopicVKConfirmation   = "vk.confirmation"
	TopicChatwootIncoming = "chatwoot.incoming"
	TopicChatwootOutgoing = "chatwoot.outgoing"
)
