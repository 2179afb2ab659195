package rules

import (
	"context"
	"sync"
	"time"

	"github.com/liamcoop/staffrules/internal/logger"
)

const persistTimeout = 10 * time.Second

// persister writes rule snapshots to a repository in the background.
// Each submit carries a sequence number; a snapshot older than the last one
// written is dropped, so saves never go backwards.
type persister struct {
	repo  RuleRepository
	wg    sync.WaitGroup
	seqMu sync.Mutex
	seq   uint64

	saveMu sync.Mutex
	saved  uint64
}

func newPersister(repo RuleRepository) *persister {
	return &persister{repo: repo}
}

// submit schedules a save of rules and returns immediately
func (p *persister) submit(rules []*Rule) {
	p.seqMu.Lock()
	p.seq++
	seq := p.seq
	p.seqMu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.saveMu.Lock()
		defer p.saveMu.Unlock()
		if seq <= p.saved {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := p.repo.Save(ctx, rules); err != nil {
			logger.Error("failed to persist rules", "error", err, "count", len(rules))
			return
		}
		p.saved = seq
	}()
}

// flush blocks until every submitted save has finished
func (p *persister) flush() {
	p.wg.Wait()
}
