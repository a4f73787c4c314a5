package cmn

import "time"

// RobotsErrorGrace is how long a host whose robots.txt could not be
// fetched is treated as allow-all before the next retry, so a transient
// robots.txt outage never blocks a whole host.
const RobotsErrorGrace = 5 * time.Minute

// CrawlJob.status.
const (
	JobStatusRunning = "running"
	JobStatusPaused  = "paused"
	JobStatusDone    = "done"
	JobStatusError   = "error"
	JobStatusAborted = "aborted"
)

// URL state within a job.
const (
	URLStateNew            = "new"
	URLStateQueued         = "queued"
	URLStateInFlight       = "in-flight"
	URLStateCompleted      = "completed"
	URLStateErrorRetriable = "error-retriable"
	URLStateErrorTerminal  = "error-terminal"
)

// QueueEvent.action.
const (
	QueueActionEnqueued = "enqueued"
	QueueActionDequeued = "dequeued"
	QueueActionSkipped  = "skipped"
	QueueActionError    = "error"
	QueueActionMilestone = "milestone"
)

// queue entry origin.
const (
	OriginSeed    = "seed"
	OriginSitemap = "sitemap"
	OriginLink    = "link"
	OriginProbe   = "pattern-probe"
)

// queue entry role.
const (
	RoleFrontier = "frontier"
	RoleRetry    = "retry"
	RoleProbe    = "probe"
)

// CompressionBucket.status.
const (
	BucketActive   = "active"
	BucketSealed   = "sealed"
	BucketArchived = "archived"
)

// ContentStorage.storage_type.
const (
	StorageInline   = "inline"
	StorageBucketed = "bucketed"
	StorageExternal = "external"
)

// Planner stage.
const (
	StageStartup   = "startup"
	StageDiscovery = "discovery"
	StageFetchLoop = "fetch-loop"
	StageExtract   = "extract"
	StageShutdown  = "shutdown"
)

// PlannerStageEvent.status.
const (
	StageStarted   = "started"
	StageProgress  = "progress"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// Place.kind.
const (
	PlaceKindCountry  = "country"
	PlaceKindRegion   = "region"
	PlaceKindCity     = "city"
	PlaceKindAdmin1   = "admin1"
	PlaceKindAdmin2   = "admin2"
	PlaceKindLocality = "locality"
	PlaceKindOther    = "other"
)

// PlaceName.name_kind.
const (
	NameKindCanonical  = "canonical"
	NameKindPreferred  = "preferred"
	NameKindHistorical = "historical"
	NameKindEndonym    = "endonym"
	NameKindExonym     = "exonym"
	NameKindSlug       = "slug"
)

// PlaceHub.status.
const (
	HubCandidate = "candidate"
	HubVerified  = "verified"
	HubRejected  = "rejected"
)

// ExclusionPattern.kind.
const (
	ExclusionOrg      = "org"
	ExclusionPersonal = "personal"
	ExclusionProduct  = "product"
)
