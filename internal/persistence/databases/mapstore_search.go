package databases

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"mirix/internal/persistence"
)

// candidate is a kind-erased view over one entity, built fresh for
// each Search call so string/fuzzy/semantic ranking share one pipeline
// across all six entity kinds (spec §4.5.1).
type candidate struct {
	id        string
	createdAt time.Time
	fieldText string
	entity    any
}

func (s *MapStore) Search(ctx context.Context, q persistence.SearchQuery) ([]persistence.SearchHit, error) {
	s.mu.RLock()
	cands := s.candidatesForKind(q.Kind, q.Field, q.OrganizationID)
	s.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	if strings.TrimSpace(q.Query) == "" {
		sort.Slice(cands, func(i, j int) bool { return cands[i].createdAt.After(cands[j].createdAt) })
		return toHits(trimTo(cands, limit), 1, q.Timezone), nil
	}

	switch q.Method {
	case persistence.MethodStringMatch, "":
		needle := normalize(q.Query)
		var matched []candidate
		for _, c := range cands {
			if strings.Contains(normalize(c.fieldText), needle) {
				matched = append(matched, c)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].createdAt.After(matched[j].createdAt) })
		return toHits(trimTo(matched, limit), 1, q.Timezone), nil

	case persistence.MethodFuzzyMatch:
		needle := normalize(q.Query)
		type scored struct {
			c     candidate
			score float64
		}
		out := make([]scored, 0, len(cands))
		for _, c := range cands {
			out = append(out, scored{c: c, score: partialRatio(needle, normalize(c.fieldText))})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].score != out[j].score {
				return out[i].score > out[j].score
			}
			return out[i].c.createdAt.After(out[j].c.createdAt)
		})
		if len(out) > limit {
			out = out[:limit]
		}
		hits := make([]persistence.SearchHit, 0, len(out))
		for _, o := range out {
			hits = append(hits, persistence.SearchHit{ID: o.c.id, CreatedAt: convertTZ(o.c.createdAt, q.Timezone), Score: o.score, Entity: o.c.entity})
		}
		return hits, nil

	case persistence.MethodSemanticMatch:
		byID := make(map[string]candidate, len(cands))
		for _, c := range cands {
			byID[c.id] = c
		}
		results, err := s.vectors.SimilaritySearch(ctx, q.QueryEmbedding, limit*4, map[string]string{
			"kind":  string(q.Kind),
			"field": q.Field,
		})
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
		sort.Slice(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score // cosine similarity descending == distance ascending
			}
			ci, oki := byID[entityIDOf(results[i].ID)]
			cj, okj := byID[entityIDOf(results[j].ID)]
			if oki && okj && !ci.createdAt.Equal(cj.createdAt) {
				return ci.createdAt.Before(cj.createdAt)
			}
			return results[i].ID < results[j].ID
		})
		hits := make([]persistence.SearchHit, 0, limit)
		for _, r := range results {
			c, ok := byID[entityIDOf(r.ID)]
			if !ok {
				continue
			}
			hits = append(hits, persistence.SearchHit{ID: c.id, CreatedAt: convertTZ(c.createdAt, q.Timezone), Score: r.Score, Entity: c.entity})
			if len(hits) >= limit {
				break
			}
		}
		return hits, nil

	default:
		return nil, fmt.Errorf("unsupported search method: %s", q.Method)
	}
}

func entityIDOf(vectorKey string) string {
	if i := strings.IndexByte(vectorKey, '\x00'); i >= 0 {
		return vectorKey[:i]
	}
	return vectorKey
}

func (s *MapStore) candidatesForKind(kind persistence.EntityKind, field, organizationID string) []candidate {
	var out []candidate
	switch kind {
	case persistence.KindEpisodic:
		for _, e := range s.episodic {
			if e.OrganizationID != organizationID {
				continue
			}
			out = append(out, candidate{id: e.ID, createdAt: e.CreatedAt, fieldText: fieldOf(field, namedField{"summary", e.Summary}, namedField{"details", e.Details}), entity: cloneEpisodic(e)})
		}
	case persistence.KindSemantic:
		for _, it := range s.semantic {
			if it.OrganizationID != organizationID {
				continue
			}
			out = append(out, candidate{id: it.ID, createdAt: it.CreatedAt, fieldText: fieldOf(field, namedField{"concept", it.Concept}, namedField{"definition", it.Definition}, namedField{"details", it.Details}), entity: cloneSemantic(it)})
		}
	case persistence.KindProcedural:
		for _, p := range s.procedural {
			if p.OrganizationID != organizationID {
				continue
			}
			out = append(out, candidate{id: p.ID, createdAt: p.CreatedAt, fieldText: fieldOf(field, namedField{"description", p.Description}, namedField{"steps", p.Steps}), entity: cloneProcedural(p)})
		}
	case persistence.KindResource:
		for _, r := range s.resource {
			if r.OrganizationID != organizationID {
				continue
			}
			out = append(out, candidate{id: r.ID, createdAt: r.CreatedAt, fieldText: fieldOf(field, namedField{"title", r.Title}, namedField{"summary", r.Summary}, namedField{"content", r.Content}), entity: cloneResource(r)})
		}
	case persistence.KindKnowledgeVault:
		for _, k := range s.knowledgeVault {
			if k.OrganizationID != organizationID {
				continue
			}
			out = append(out, candidate{id: k.ID, createdAt: k.CreatedAt, fieldText: fieldOf(field, namedField{"description", k.Description}, namedField{"source", k.Source}), entity: cloneKnowledgeVault(k)})
		}
	case persistence.KindCore:
		for _, b := range s.core {
			if b.OrganizationID != organizationID {
				continue
			}
			out = append(out, candidate{id: b.ID, createdAt: b.CreatedAt, fieldText: b.Value, entity: cloneCore(b)})
		}
	}
	return out
}

// namedField pairs an entity's attribute name with its text value so
// fieldOf can honor the caller's requested field instead of always
// matching the first one.
type namedField struct {
	name string
	text string
}

// fieldOf returns the text of the named field the caller requested, or
// fields[0]'s text as the default when field is empty or unrecognized
// (spec §4.5.1 "item.field or default_field").
func fieldOf(field string, fields ...namedField) string {
	if len(fields) == 0 {
		return ""
	}
	for _, f := range fields {
		if f.name == field {
			return f.text
		}
	}
	return fields[0].text
}

func trimTo(c []candidate, limit int) []candidate {
	if len(c) > limit {
		return c[:limit]
	}
	return c
}

func toHits(cands []candidate, scoreEach float64, tz *time.Location) []persistence.SearchHit {
	hits := make([]persistence.SearchHit, 0, len(cands))
	for _, c := range cands {
		hits = append(hits, persistence.SearchHit{ID: c.id, CreatedAt: convertTZ(c.createdAt, tz), Score: scoreEach, Entity: c.entity})
	}
	return hits
}

func convertTZ(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		return t
	}
	return t.In(tz)
}

func cloneEpisodic(e *persistence.EpisodicEvent) *persistence.EpisodicEvent { cp := *e; return &cp }
func cloneSemantic(e *persistence.SemanticItem) *persistence.SemanticItem  { cp := *e; return &cp }
func cloneProcedural(e *persistence.ProceduralItem) *persistence.ProceduralItem {
	cp := *e
	return &cp
}
func cloneResource(e *persistence.ResourceItem) *persistence.ResourceItem { cp := *e; return &cp }
func cloneKnowledgeVault(e *persistence.KnowledgeVaultItem) *persistence.KnowledgeVaultItem {
	cp := *e
	return &cp
}
func cloneCore(e *persistence.CoreBlock) *persistence.CoreBlock { cp := *e; return &cp }
