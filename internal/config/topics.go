package config

const (
	// TopicJobEvents is the NSQ topic carrying job state-transition events.
	TopicJobEvents = "score.job.events"
)
