package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/renderinc/docket-monitor/internal/model"
	"github.com/renderinc/docket-monitor/internal/storage"
)

// batchSize bounds memory during a rebuild
const batchSize = 500

// Index wraps a Bleve search index over docket entries
type Index struct {
	index bleve.Index
}

// IndexedEntry represents a docket entry in the search index
type IndexedEntry struct {
	CaseID      string
	CourtID     string
	CaseNumber  string
	CaseName    string
	Number      float64
	Description string
	DateFiled   string // YYYY-MM-DD, empty when unknown
	DocumentURL string
}

// SearchResult represents a search result
type SearchResult struct {
	ID          string
	CaseID      string
	CaseName    string
	Number      int
	Description string
	DocumentURL string
	Score       float64
	Fragments   map[string][]string // Highlighted snippets
}

// EntryID is the index document ID of an entry
func EntryID(caseID string, number int) string {
	return fmt.Sprintf("%s#%d", caseID, number)
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// NewMemOnly creates an index that lives only in memory
func NewMemOnly() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping analyzes descriptions and case names as English text
// and keeps identifiers as exact keywords
func buildIndexMapping() mapping.IndexMapping {
	englishText := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = "en"
		return fm
	}

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("CaseID", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("CourtID", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("CaseNumber", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("CaseName", englishText())
	docMapping.AddFieldMappingsAt("Description", englishText())
	docMapping.AddFieldMappingsAt("Number", bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt("DateFiled", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("DocumentURL", bleve.NewTextFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexEntries adds or replaces entries of one case in a single batch
func (i *Index) IndexEntries(c model.Summary, entries []model.DocketEntry) error {
	batch := i.index.NewBatch()
	for _, e := range entries {
		if err := batch.Index(EntryID(c.ID, e.Number), toIndexed(c, e)); err != nil {
			return fmt.Errorf("batch index %s: %w", EntryID(c.ID, e.Number), err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func toIndexed(c model.Summary, e model.DocketEntry) *IndexedEntry {
	var filed string
	if !e.DateFiled.IsZero() {
		filed = e.DateFiled.Format(time.DateOnly)
	}
	return &IndexedEntry{
		CaseID:      c.ID,
		CourtID:     c.CourtID,
		CaseNumber:  c.CaseNumber,
		CaseName:    c.Name,
		Number:      float64(e.Number),
		Description: e.Description,
		DateFiled:   filed,
		DocumentURL: e.DocumentURL,
	}
}

// Search performs a query-string search (supports quotes, +/-, field:term
// and fuzzy ~) over descriptions and case names
func (i *Index) Search(queryStr string, limit int) ([]*SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Highlight = bleve.NewHighlightWithStyle("html")
	search.Fields = []string{"CaseID", "CaseName", "Number", "Description", "DocumentURL"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	searchResults := []*SearchResult{}
	for _, hit := range results.Hits {
		result := &SearchResult{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}

		if v, ok := hit.Fields["CaseID"].(string); ok {
			result.CaseID = v
		}
		if v, ok := hit.Fields["CaseName"].(string); ok {
			result.CaseName = v
		}
		if v, ok := hit.Fields["Number"].(float64); ok {
			result.Number = int(v)
		}
		if v, ok := hit.Fields["Description"].(string); ok {
			result.Description = v
		}
		if v, ok := hit.Fields["DocumentURL"].(string); ok {
			result.DocumentURL = v
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// IndexFromStorage re-indexes every stored entry. progress, if set, is
// called after each committed batch with the running total.
func (i *Index) IndexFromStorage(ctx context.Context, db *storage.DB, progress func(done int)) (int, error) {
	cases, err := db.ListCases(ctx)
	if err != nil {
		return 0, fmt.Errorf("list cases: %w", err)
	}
	summaries := make(map[string]model.Summary, len(cases))
	for _, c := range cases {
		summaries[c.ID] = c.Summary()
	}

	entries, err := db.AllEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list entries: %w", err)
	}

	done := 0
	batch := i.index.NewBatch()
	for _, e := range entries {
		summary, ok := summaries[e.CaseID]
		if !ok {
			summary = model.Summary{ID: e.CaseID}
		}
		if err := batch.Index(EntryID(e.CaseID, e.Number), toIndexed(summary, e)); err != nil {
			return done, fmt.Errorf("batch index %s: %w", EntryID(e.CaseID, e.Number), err)
		}

		if batch.Size() >= batchSize {
			if err := i.index.Batch(batch); err != nil {
				return done, fmt.Errorf("commit batch: %w", err)
			}
			done += batch.Size()
			batch.Reset()
			if progress != nil {
				progress(done)
			}
		}
	}

	if batch.Size() > 0 {
		if err := i.index.Batch(batch); err != nil {
			return done, fmt.Errorf("commit batch: %w", err)
		}
		done += batch.Size()
		if progress != nil {
			progress(done)
		}
	}

	return done, nil
}

// Count returns the number of entries in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
