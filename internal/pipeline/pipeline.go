// Package pipeline orchestrates one document run: chunk, generate,
// deduplicate, link, resolve taxonomy, gate, persist, record feedback.
// Stages are pure transformations over value slices; the pipeline owns
// sequencing, failure accounting, and the single persistence transaction
// at the end.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/chunker"
	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/dedupe"
	"github.com/aegis-advisory/guidance-cli/internal/extract"
	"github.com/aegis-advisory/guidance-cli/internal/gate"
	"github.com/aegis-advisory/guidance-cli/internal/learning"
	"github.com/aegis-advisory/guidance-cli/internal/linker"
	"github.com/aegis-advisory/guidance-cli/internal/model"
	"github.com/aegis-advisory/guidance-cli/internal/store"
	"github.com/aegis-advisory/guidance-cli/internal/taxonomy"
	"github.com/aegis-advisory/guidance-cli/pkg/inference"
)

// Pipeline processes documents end to end. Stateless between documents;
// safe for concurrent Process calls.
type Pipeline struct {
	chunker   *chunker.Chunker
	generator *extract.Generator
	deduper   *dedupe.Deduper
	linker    *linker.Linker
	resolver  *taxonomy.Resolver
	gate      *gate.Gate
	store     store.Store
	recorder  *learning.Recorder

	// inference is optional; when nil the pipeline runs on pattern rules
	// and any pre-computed model responses alone.
	inference inference.Client
}

// New wires a Pipeline from configuration and its injected collaborators.
func New(cfg *config.Config, st store.Store, repo taxonomy.Repository, inf inference.Client) (*Pipeline, error) {
	gen, err := extract.New(cfg.Extract)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		chunker:   chunker.New(cfg.Chunker),
		generator: gen,
		deduper:   dedupe.New(cfg.Dedupe),
		linker:    linker.New(cfg.Linker),
		resolver:  taxonomy.NewResolver(repo, cfg.Taxonomy),
		gate:      gate.New(cfg.Gate),
		store:     st,
		recorder:  learning.NewRecorder(st, cfg.Learning),
		inference: inf,
	}, nil
}

// Input is one document to process. ModelResponses maps chunk index to a
// pre-computed model extraction JSON; chunks without an entry go through
// the inference client when one is configured.
type Input struct {
	Document       model.Document
	Text           string
	ModelResponses map[int][]byte
}

// Process runs the full pipeline for one document and persists the
// result. Partial failures (bad model JSON, taxonomy misses, gate drops)
// are absorbed into the summary; only empty input or a storage failure
// aborts the run.
func (p *Pipeline) Process(ctx context.Context, in Input) (*model.RunResult, error) {
	start := time.Now()
	log := zap.L().With(zap.String("document", in.Document.Hash))

	result := &model.RunResult{Document: in.Document}
	summary := &result.Summary

	chunks, err := p.chunker.Split(in.Document.Hash, in.Text)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: chunk document %s", in.Document.Hash)
	}
	summary.Chunks = len(chunks)
	log.Info("pipeline: document chunked", zap.Int("chunks", len(chunks)))

	candidates := p.generate(ctx, chunks, in.ModelResponses, summary, log)
	summary.Candidates = len(candidates)

	vulns, ofcs := partition(candidates)
	vulns, ofcs = p.dedupe(ctx, in.Document.Hash, vulns, ofcs, summary, log)

	linked := p.linker.Link(vulns, ofcs)
	vulns = append(vulns, linked.ImpliedVulns...)
	summary.Links = len(linked.Links)
	summary.ImpliedVulns = len(linked.ImpliedVulns)

	chunkText := make(map[string]string, len(chunks))
	for _, c := range chunks {
		chunkText[c.ID] = c.Text
	}

	keep := make(map[string]bool)
	for _, cand := range vulns {
		if rec, ok := p.finalize(ctx, cand, in.Document.Hash, chunkText, summary, log); ok {
			result.Vulnerabilities = append(result.Vulnerabilities, rec)
			keep[rec.ID] = true
		}
	}
	for _, cand := range ofcs {
		if rec, ok := p.finalize(ctx, cand, in.Document.Hash, chunkText, summary, log); ok {
			result.OptionsForConsideration = append(result.OptionsForConsideration, rec)
			keep[rec.ID] = true
		}
	}

	// Links must not dangle: drop any whose endpoint was gated out.
	for _, link := range linked.Links {
		if keep[link.VulnerabilityID] && keep[link.OFCID] {
			result.VulnerabilityOFCLinks = append(result.VulnerabilityOFCLinks, link)
		}
	}
	summary.Links = len(result.VulnerabilityOFCLinks)

	summary.DurationMillis = time.Since(start).Milliseconds()

	if err := p.store.SaveRun(ctx, result); err != nil {
		return nil, eris.Wrapf(err, "pipeline: persist document %s", in.Document.Hash)
	}

	if ev := p.recorder.Record(ctx, result); ev != nil {
		summary.LearningRecorded = true
	}

	log.Info("pipeline: document complete",
		zap.Int("vulnerabilities", len(result.Vulnerabilities)),
		zap.Int("ofcs", len(result.OptionsForConsideration)),
		zap.Int("links", len(result.VulnerabilityOFCLinks)),
		zap.Int("accepted", summary.Accepted),
		zap.Int("dropped", summary.Dropped),
		zap.Int64("duration_ms", summary.DurationMillis),
	)
	return result, nil
}

// generate runs the candidate generator over every chunk, pulling model
// output from the precomputed map or the inference client. An inference
// failure leaves the chunk with rule candidates only.
func (p *Pipeline) generate(ctx context.Context, chunks []model.Chunk, precomputed map[int][]byte, summary *model.RunSummary, log *zap.Logger) []model.Candidate {
	var out []model.Candidate
	for _, chunk := range chunks {
		modelJSON, ok := precomputed[chunk.Index]
		if !ok && p.inference != nil {
			text, err := p.inference.Extract(ctx, chunk)
			if err != nil {
				log.Warn("pipeline: inference failed, chunk continues on rules",
					zap.String("chunk", chunk.ID),
					zap.Error(err),
				)
				summary.FailedChunks = append(summary.FailedChunks, chunk.ID)
			} else {
				modelJSON = []byte(text)
			}
		}

		res := p.generator.Generate(chunk, modelJSON)
		if res.ParseFailed {
			summary.ParseFailures++
			summary.FailedChunks = append(summary.FailedChunks, chunk.ID)
		}
		summary.Quarantined += res.Quarantined
		out = append(out, res.Candidates...)
	}
	return out
}

// dedupe collapses duplicates per kind, consulting previously persisted
// fingerprints so reprocessing and cross-document repeats stay idempotent.
// A fingerprint fetch failure degrades to within-document dedupe only.
func (p *Pipeline) dedupe(ctx context.Context, docHash string, vulns, ofcs []model.Candidate, summary *model.RunSummary, log *zap.Logger) ([]model.Candidate, []model.Candidate) {
	prior := func(kind model.Kind) map[string]bool {
		fps, err := p.store.Fingerprints(ctx, kind, docHash)
		if err != nil {
			log.Warn("pipeline: prior fingerprints unavailable",
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			return nil
		}
		return fps
	}

	vulnsOut, mergedV, crossV := p.deduper.DedupeAgainst(vulns, prior(model.KindVulnerability))
	ofcsOut, mergedO, crossO := p.deduper.DedupeAgainst(ofcs, prior(model.KindOFC))
	summary.Merged = mergedV + mergedO
	summary.CrossDocDropped = crossV + crossO
	return vulnsOut, ofcsOut
}

// finalize resolves taxonomy, gates, and converts a surviving candidate
// into a Record. Returns false when the gate drops it.
func (p *Pipeline) finalize(ctx context.Context, cand model.Candidate, docHash string, chunkText map[string]string, summary *model.RunSummary, log *zap.Logger) (model.Record, bool) {
	rec := model.Record{
		Candidate:    cand,
		DocumentHash: docHash,
		DedupeKey:    dedupe.Fingerprint(cand.Text),
		CreatedAt:    time.Now().UTC(),
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	rec.DisciplineID, rec.Category = p.resolve(ctx, taxonomy.VocabDiscipline, cand.Discipline, summary, log)
	rec.SectorID, _ = p.resolve(ctx, taxonomy.VocabSector, cand.Sector, summary, log)
	rec.SubsectorID, _ = p.resolve(ctx, taxonomy.VocabSubsector, cand.Subsector, summary, log)

	// Synthesized placeholders have no source sentence to check evidence
	// against; they are gated on confidence alone.
	evidence := ""
	if !cand.Implied {
		evidence = chunkText[cand.ChunkID]
	}

	outcome := p.gate.Evaluate(cand, evidence)
	rec.Score = outcome.Score
	rec.Decision = outcome.Decision
	if outcome.Downgraded {
		summary.Downgraded++
	}
	if outcome.Dropped {
		summary.Dropped++
		return model.Record{}, false
	}
	switch outcome.Decision {
	case model.DecisionAccepted:
		summary.Accepted++
	case model.DecisionNeedsReview:
		summary.NeedsReview++
	}
	return rec, true
}

// resolve maps one free-text label, recording misses in the summary. A
// repository error is treated as a miss so the document still completes.
func (p *Pipeline) resolve(ctx context.Context, vocab taxonomy.Vocabulary, label string, summary *model.RunSummary, log *zap.Logger) (*string, string) {
	if label == "" {
		return nil, ""
	}
	match, err := p.resolver.Resolve(ctx, vocab, label)
	if err != nil {
		log.Warn("pipeline: taxonomy lookup failed",
			zap.String("vocabulary", string(vocab)),
			zap.String("label", label),
			zap.Error(err),
		)
		return nil, ""
	}
	if match == nil {
		summary.UnresolvedLabels = append(summary.UnresolvedLabels, string(vocab)+":"+label)
		return nil, ""
	}
	id := match.ID
	return &id, match.Category
}

func partition(candidates []model.Candidate) (vulns, ofcs []model.Candidate) {
	for _, c := range candidates {
		if c.Kind == model.KindVulnerability {
			vulns = append(vulns, c)
		} else {
			ofcs = append(ofcs, c)
		}
	}
	return vulns, ofcs
}
