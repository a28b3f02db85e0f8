// Package census runs the breadth-first enumeration of the reachable 7x6
// game tree, classifying every position at every ply by the proof roles
// under which it appears and emitting per-depth counts.
package census

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pbnjay/memory"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/c4census/board"
	"github.com/domino14/c4census/config"
	"github.com/domino14/c4census/frontier"
	"github.com/domino14/c4census/nodekind"
	"github.com/domino14/c4census/oracle"
)

// Prober answers position queries. oracle.Client is the production
// implementation; tests substitute deterministic fakes. A Prober belongs
// to exactly one worker.
type Prober interface {
	Probe(ply int, pos board.Position) (oracle.Result, error)
	Close() error
}

// ProberFactory builds one Prober per worker thread.
type ProberFactory func(thread int) (Prober, error)

type censusRow struct {
	depth int
	sol   uint64
	cert  uint64
}

// Engine owns the two alternating frontier tables, one oracle per worker,
// and the depth loop.
type Engine struct {
	cfg       *config.Config
	threads   int
	newProber ProberFactory

	tables  [2]*frontier.Table
	probers []Prober
	rows    []censusRow

	queries  atomic.Uint64
	children atomic.Uint64
}

func NewEngine(cfg *config.Config) *Engine {
	e := &Engine{cfg: cfg, threads: cfg.Threads}
	e.newProber = func(thread int) (Prober, error) {
		return oracle.Start(cfg.OracleBinary, cfg.SolutionDir, cfg.OracleInMemory)
	}
	return e
}

func (e *Engine) SetThreads(n int) {
	e.threads = n
}

func (e *Engine) SetProberFactory(f ProberFactory) {
	e.newProber = f
}

// Run executes the full census: spawn and handshake the oracles, seed the
// root frontier, then expand depth by depth, writing one row per depth.
func (e *Engine) Run(ctx context.Context) error {
	tstart := time.Now()
	if e.threads <= 0 {
		e.threads = runtime.NumCPU()
	}

	capacity := e.cfg.TableCapacity
	if capacity == 0 {
		capacity = config.DefaultTableCapacity
	}
	footprint := 2 * capacity * 8
	totalMem := memory.TotalMemory()
	log.Info().Uint64("capacity", capacity).
		Uint64("frontier-bytes", footprint).
		Uint64("total-system-memory-bytes", totalMem).
		Msg("frontier-table-size")
	if totalMem > 0 && footprint > totalMem {
		log.Warn().Msg("frontier-tables-exceed-physical-memory")
	}
	for i := range e.tables {
		t, err := frontier.New(capacity)
		if err != nil {
			return err
		}
		e.tables[i] = t
	}

	log.Info().Int("count", e.threads).Msg("starting-oracles")
	e.probers = make([]Prober, e.threads)
	defer e.closeProbers()
	for t := 0; t < e.threads; t++ {
		p, err := e.newProber(t)
		if err != nil {
			return fmt.Errorf("starting oracle %d: %w", t, err)
		}
		e.probers[t] = p
	}
	// Probe each oracle once so table loading finishes before the BFS
	// starts and startup failures surface here.
	for t, p := range e.probers {
		if _, err := p.Probe(0, 0); err != nil {
			return fmt.Errorf("oracle %d handshake: %w", t, err)
		}
	}
	log.Info().Msg("oracles-initialized")

	rw, err := newReportWriter(e.cfg.CSVPath)
	if err != nil {
		return err
	}
	defer rw.close()
	if err := rw.header(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	if err := e.seedRoot(); err != nil {
		return err
	}
	if err := e.emitRow(rw, 0, e.tables[0]); err != nil {
		return err
	}

	maxDepth := e.cfg.MaxDepth
	if maxDepth <= 0 || maxDepth > config.MaxPly {
		maxDepth = config.MaxPly
	}
	log.Info().Int("max-depth", maxDepth).Msg("starting-bfs")
	for depth := 0; depth < maxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		dstart := time.Now()
		cur := e.tables[depth%2]
		next := e.tables[(depth+1)%2]
		next.Clear()

		if err := e.expandDepth(ctx, depth, cur, next); err != nil {
			return err
		}
		if err := e.emitRow(rw, depth+1, next); err != nil {
			return err
		}
		log.Info().Int("depth", depth+1).
			Uint64("nodes", next.Size()).
			Uint64("oracle-queries", e.queries.Load()).
			Dur("elapsed", time.Since(dstart)).
			Msg("depth-complete")
		if mm := next.ValueMismatches(); mm > 0 {
			log.Debug().Uint64("mismatches", mm).Int("depth", depth+1).
				Msg("merge-value-mismatches")
		}
	}

	if err := rw.close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	digest := rw.digest.Sum64()
	totalNodes := lo.SumBy(e.rows, func(r censusRow) uint64 { return r.sol + r.cert })
	widest := lo.MaxBy(e.rows, func(a, b censusRow) bool {
		return a.sol+a.cert > b.sol+b.cert
	})
	log.Info().Str("output-digest", fmt.Sprintf("%016x", digest)).
		Uint64("total-nodes", totalNodes).
		Int("widest-depth", widest.depth).
		Uint64("oracle-queries", e.queries.Load()).
		Uint64("children-emitted", e.children.Load()).
		Float64("time-elapsed-sec", time.Since(tstart).Seconds()).
		Msg("census-complete")
	return nil
}

// seedRoot writes the depth-0 frontier: the empty board on the principal
// variation, valued by probing the oracle.
func (e *Engine) seedRoot() error {
	res, err := e.probers[0].Probe(0, 0)
	if err != nil {
		return fmt.Errorf("probing root: %w", err)
	}
	rootValue := int8(-1)
	if !res.Terminal {
		v, _, err := bestMove(res.Values)
		if err != nil {
			return fmt.Errorf("probing root: %w", err)
		}
		rootValue = v
	}
	meta := frontier.PackMeta(uint8(rootValue+1), uint8(nodekind.PV))
	return e.tables[0].SetMerge(0, meta)
}

// expandDepth scans cur's slot array in static round-robin chunks across
// the worker pool. Each worker batches its children locally and merges the
// whole batch into next under one table-wide mutex after its scan ends.
func (e *Engine) expandDepth(ctx context.Context, depth int, cur, next *frontier.Table) error {
	chunk := e.cfg.ChunkSize
	if chunk == 0 {
		chunk = config.DefaultChunkSize
	}
	nchunks := (cur.Cap() + chunk - 1) / chunk

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for t := 0; t < e.threads; t++ {
		t := t
		g.Go(func() error {
			prober := e.probers[t]
			children := make([]packedChild, 0, 1024)
			for ci := uint64(t); ci < nchunks; ci += uint64(e.threads) {
				if err := ctx.Err(); err != nil {
					return err
				}
				begin := ci * chunk
				end := min(begin+chunk, cur.Cap())
				for i := begin; i < end; i++ {
					key, meta, ok := cur.EntryAt(i)
					if !ok {
						continue
					}
					var err error
					children, err = e.expand(prober, board.Position(key), depth,
						nodekind.Mask(meta.Kind()), children)
					if err != nil {
						return err
					}
				}
			}
			mu.Lock()
			defer mu.Unlock()
			for _, c := range children {
				meta := frontier.PackMeta(c.valuePlusOne(), uint8(c.kind()))
				if err := next.SetMerge(uint64(c.position()), meta); err != nil {
					return err
				}
			}
			e.children.Add(uint64(len(children)))
			return nil
		})
	}
	return g.Wait()
}

// emitRow counts the table and writes one census row.
func (e *Engine) emitRow(rw *reportWriter, depth int, t *frontier.Table) error {
	sol, cert := countKinds(t)
	e.rows = append(e.rows, censusRow{depth: depth, sol: sol, cert: cert})
	if err := rw.row(depth, sol, cert); err != nil {
		return fmt.Errorf("writing row %d: %w", depth, err)
	}
	return nil
}

// countKinds scans every slot, splitting occupied entries into solution
// artifacts and proof certificates.
func countKinds(t *frontier.Table) (sol, cert uint64) {
	for i := uint64(0); i < t.Cap(); i++ {
		_, meta, ok := t.EntryAt(i)
		if !ok {
			continue
		}
		if nodekind.Mask(meta.Kind()).IsSolution() {
			sol++
		} else {
			cert++
		}
	}
	return sol, cert
}

func (e *Engine) closeProbers() {
	for t, p := range e.probers {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			log.Debug().Err(err).Int("thread", t).Msg("oracle-close")
		}
	}
}
