// Command crawlerd wires the crawler's collaborators together and starts
// one seed job. Process-level concerns - signal handling, a real RPC/HTTP
// control-plane listener, graceful daemonization - are out of scope;
// this stub exists so the components in db, store,
// queue, fetch, planner, analyzer, places, and resumeinv have a single
// concrete entry point exercising them together.
package main

import (
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/newsgrid/crawler/analyzer"
	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/newsgrid/crawler/fetch"
	"github.com/newsgrid/crawler/planner"
	"github.com/newsgrid/crawler/places"
	"github.com/newsgrid/crawler/queue"
	"github.com/newsgrid/crawler/store"
)

func main() {
	dbPath := flag.String("db", "crawler.db", "path to the sqlite database")
	storeDir := flag.String("store-dir", "./crawler-store", "content-addressed storage base directory")
	corpusPath := flag.String("corpus", "", "optional path to persist the analyzer's keyword corpus")
	seedURL := flag.String("seed", "", "seed URL to start a job against; empty starts no job")
	crawlType := flag.String("crawl-type", "", "crawl_types.name for the seed job (sitemap-only | intelligent | gazetteer-ingest)")
	flag.Parse()
	defer glog.Flush()

	cfg := cmn.DefaultConfig()

	database, err := crawlerdb.Open(*dbPath)
	if err != nil {
		glog.Errorf("crawlerd: open db: %v", err)
		glog.Flush()
		var unavailable *crawlerdb.ErrUnavailable
		if errors.As(err, &unavailable) {
			os.Exit(2) // database unavailable, per the control-plane exit-code contract
		}
		os.Exit(1)
	}
	defer database.Close()

	gaz := places.New(cfg.Places)
	if err := gaz.Load(database); err != nil {
		glog.Fatalf("crawlerd: load gazetteer: %v", err)
	}
	resolver := places.NewResolver(gaz)

	an, err := analyzer.New(*corpusPath)
	if err != nil {
		glog.Fatalf("crawlerd: init analyzer: %v", err)
	}
	defer func() {
		if cErr := an.Close(); cErr != nil {
			glog.Errorf("crawlerd: close analyzer: %v", cErr)
		}
	}()

	q := queue.New(database, cfg.Queue)
	f := fetch.New(cfg.Fetch, cfg.UserAgent)
	st, err := store.Open(database, *storeDir, cfg.Storage, nil)
	if err != nil {
		glog.Fatalf("crawlerd: open store: %v", err)
	}
	defer st.Close()

	p := planner.New(database, q, f, st, an, resolver, cfg.Planner, cfg.Fetch)

	if *seedURL == "" {
		glog.Info("crawlerd: no -seed given, components wired and idle")
		return
	}

	jobID, err := p.StartJob(planner.JobArgs{SeedURL: *seedURL, CrawlType: *crawlType})
	if err != nil {
		glog.Fatalf("crawlerd: start job: %v", err)
	}
	glog.Infof("crawlerd: started job %s for %s", jobID, *seedURL)

	if n, err := places.ReportDuplicates(database, gaz, jobID); err != nil {
		glog.Errorf("crawlerd: duplicate scan: %v", err)
	} else if n > 0 {
		glog.Infof("crawlerd: gazetteer duplicate scan found %d candidate pair(s)", n)
	}

	select {} // runJob's goroutine drains the job; this stub never exits on its own
}
