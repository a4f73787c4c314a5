// Package planner implements the crawl job stage state machine: a
// deterministic sequence
// startup -> discovery -> fetch-loop -> extract -> shutdown, driven by
// one long-lived goroutine per active job, with cooperative cancellation
// checked at every suspension point.
package planner

import "github.com/newsgrid/crawler/cmn"

// Stage names, aliasing cmn.Stage* for readability within this package.
const (
	StageStartup   = cmn.StageStartup
	StageDiscovery = cmn.StageDiscovery
	StageFetchLoop = cmn.StageFetchLoop
	StageExtract   = cmn.StageExtract
	StageShutdown  = cmn.StageShutdown
)
